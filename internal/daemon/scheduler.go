package daemon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/omnish-sh/omnish/internal/cron"
	"github.com/omnish-sh/omnish/internal/logger"
)

// task is one registered scheduled job: a cron schedule plus the function
// to invoke when it fires.
type task struct {
	name     string
	schedule *cron.Schedule
	run      func()
	enabled  bool
	next     time.Time
}

// TaskManager multiplexes named cron-scheduled jobs over a single ticking
// goroutine, with runtime enable/disable surfaced through the __cmd:tasks
// builtin.
type TaskManager struct {
	mu    sync.Mutex
	tasks map[string]*task
	now   func() time.Time
}

// NewTaskManager creates an empty TaskManager.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: make(map[string]*task), now: time.Now}
}

// Register adds a named task. If a task with the same name already exists
// it is replaced. The task starts enabled.
func (tm *TaskManager) Register(name, schedule string, run func()) error {
	sched, err := cron.Parse(schedule)
	if err != nil {
		return fmt.Errorf("daemon: register task %s: %w", name, err)
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tasks[name] = &task{
		name:     name,
		schedule: sched,
		run:      run,
		enabled:  true,
		next:     sched.Next(tm.now()),
	}
	return nil
}

// RunNow invokes a registered task's function immediately, bypassing its
// schedule. Used for startup-time runs like disk_cleanup.
func (tm *TaskManager) RunNow(name string) {
	tm.mu.Lock()
	t, ok := tm.tasks[name]
	tm.mu.Unlock()
	if !ok {
		return
	}
	t.run()
}

// SetEnabled toggles whether a task fires on its schedule.
func (tm *TaskManager) SetEnabled(name string, enabled bool) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.tasks[name]
	if !ok {
		return fmt.Errorf("daemon: unknown task %q", name)
	}
	t.enabled = enabled
	return nil
}

// TaskStatus is the external view of one task's state, for __cmd:tasks.
type TaskStatus struct {
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	Next    time.Time `json:"next"`
}

// List returns every registered task's status, sorted by name.
func (tm *TaskManager) List() []TaskStatus {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]TaskStatus, 0, len(tm.tasks))
	for _, t := range tm.tasks {
		out = append(out, TaskStatus{Name: t.name, Enabled: t.enabled, Next: t.next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run ticks once a second until ctx is canceled, firing any enabled task
// whose schedule has come due.
func (tm *TaskManager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tm.tick()
		}
	}
}

func (tm *TaskManager) tick() {
	now := tm.now()
	tm.mu.Lock()
	var due []*task
	for _, t := range tm.tasks {
		if t.enabled && !t.next.After(now) {
			due = append(due, t)
			t.next = t.schedule.Next(now)
		}
	}
	tm.mu.Unlock()

	for _, t := range due {
		logger.Debug("running scheduled task", "task", t.name)
		t.run()
	}
}
