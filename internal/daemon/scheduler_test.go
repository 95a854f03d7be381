package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskManagerRegisterAndList(t *testing.T) {
	tm := NewTaskManager()
	if err := tm.Register("eviction", "0 0 * * * *", func() {}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	statuses := tm.List()
	if len(statuses) != 1 || statuses[0].Name != "eviction" || !statuses[0].Enabled {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestTaskManagerInvalidScheduleErrors(t *testing.T) {
	tm := NewTaskManager()
	if err := tm.Register("bad", "not a schedule", func() {}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestTaskManagerSetEnabledUnknownTask(t *testing.T) {
	tm := NewTaskManager()
	if err := tm.SetEnabled("nope", false); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestTaskManagerRunNowBypassesSchedule(t *testing.T) {
	tm := NewTaskManager()
	var ran int32
	tm.Register("t", "0 0 1 1 *", func() { atomic.AddInt32(&ran, 1) })
	tm.RunNow("t")
	if atomic.LoadInt32(&ran) != 1 {
		t.Errorf("RunNow did not invoke task")
	}
}

func TestTaskManagerTicksDueTasks(t *testing.T) {
	tm := NewTaskManager()
	var ran int32
	tm.Register("every-second", "* * * * * *", func() { atomic.AddInt32(&ran, 1) })

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	tm.Run(ctx)

	if atomic.LoadInt32(&ran) == 0 {
		t.Error("expected at least one tick to fire the due task")
	}
}

func TestTaskManagerDisabledTaskDoesNotFire(t *testing.T) {
	tm := NewTaskManager()
	var ran int32
	tm.Register("every-second", "* * * * * *", func() { atomic.AddInt32(&ran, 1) })
	tm.SetEnabled("every-second", false)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	tm.Run(ctx)

	if atomic.LoadInt32(&ran) != 0 {
		t.Error("disabled task should not fire")
	}
}
