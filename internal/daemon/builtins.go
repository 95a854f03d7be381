package daemon

import (
	"encoding/json"
	"fmt"
	"strings"
)

// runBuiltinCmd dispatches an "__cmd:"-prefixed query to a daemon builtin.
// Recognized forms: "tasks", "tasks enable <name>", "tasks disable <name>",
// "context".
func (d *Daemon) runBuiltinCmd(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "unknown builtin: (empty)"
	}

	switch fields[0] {
	case "tasks":
		return d.cmdTasks(fields[1:])
	case "context":
		return d.mgr.GetAllSessionsContext(nil, nil, 0)
	default:
		return fmt.Sprintf("unknown builtin: %s", fields[0])
	}
}

func (d *Daemon) cmdTasks(args []string) string {
	if len(args) == 0 {
		var b strings.Builder
		for _, t := range d.tasks.List() {
			state := "enabled"
			if !t.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(&b, "%s\t%s\tnext=%s\n", t.Name, state, t.Next.Format("2006-01-02T15:04:05Z07:00"))
		}
		return b.String()
	}

	if len(args) != 2 {
		return "usage: tasks [enable|disable <name>]"
	}
	action, name := args[0], args[1]
	var enabled bool
	switch action {
	case "enable":
		enabled = true
	case "disable":
		enabled = false
	default:
		return fmt.Sprintf("unknown tasks action: %s", action)
	}
	if err := d.tasks.SetEnabled(name, enabled); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", name, action+"d")
}

// debugDiagnostics is the structured payload returned for "__debug:" queries.
type debugDiagnostics struct {
	Tasks       []TaskStatus `json:"tasks"`
	BackendName string       `json:"backend"`
}

func (d *Daemon) runDebugQuery(rest string) string {
	diag := debugDiagnostics{
		Tasks:       d.tasks.List(),
		BackendName: d.currentBackend().Name(),
	}
	data, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return fmt.Sprintf("debug marshal error: %v", err)
	}
	return string(data)
}
