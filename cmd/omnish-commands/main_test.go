package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/omnish-sh/omnish/internal/session"
	"github.com/omnish-sh/omnish/internal/wire"
)

func newFixtureManager(t *testing.T) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func seedSession(t *testing.T, mgr *session.Manager, sessionID, parentID string, nowMs int64, commands []string) {
	t.Helper()
	if err := mgr.Register(sessionID, parentID, nil, nowMs); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i, line := range commands {
		rec := wire.CommandRecord{
			CommandID:   line,
			SessionID:   sessionID,
			CommandLine: line,
			StartedAtMs: uint64(nowMs + int64(i)),
			HasExitCode: true,
			ExitCode:    0,
		}
		if err := mgr.ReceiveCommand(sessionID, rec); err != nil {
			t.Fatalf("ReceiveCommand: %v", err)
		}
	}
	if err := mgr.EndSession(sessionID, nowMs+1000); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
}

func TestRunDefaultFiltersToLeafSessions(t *testing.T) {
	mgr := newFixtureManager(t)
	seedSession(t, mgr, "parent01", "", 1000, []string{"echo outer"})
	seedSession(t, mgr, "child001", "parent01", 2000, []string{"echo inner"})

	var buf bytes.Buffer
	if err := run(mgr, &buf, 20, "", false); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "echo outer") {
		t.Errorf("expected parent session elided by default, got:\n%s", out)
	}
	if !strings.Contains(out, "echo inner") {
		t.Errorf("expected child (leaf) session listed, got:\n%s", out)
	}
}

func TestRunAllIncludesNonLeafSessions(t *testing.T) {
	mgr := newFixtureManager(t)
	seedSession(t, mgr, "parent02", "", 1000, []string{"echo outer"})
	seedSession(t, mgr, "child002", "parent02", 2000, []string{"echo inner"})

	var buf bytes.Buffer
	if err := run(mgr, &buf, 20, "", true); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "echo outer") || !strings.Contains(out, "echo inner") {
		t.Errorf("expected both sessions listed with --all, got:\n%s", out)
	}
}

func TestRunFiltersBySessionPrefix(t *testing.T) {
	mgr := newFixtureManager(t)
	seedSession(t, mgr, "aaa11111", "", 1000, []string{"echo a"})
	seedSession(t, mgr, "bbb22222", "", 2000, []string{"echo b"})

	var buf bytes.Buffer
	if err := run(mgr, &buf, 20, "bbb", false); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "echo a") {
		t.Errorf("expected session aaa11111 excluded by prefix filter, got:\n%s", out)
	}
	if !strings.Contains(out, "echo b") {
		t.Errorf("expected session bbb22222 included, got:\n%s", out)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	mgr := newFixtureManager(t)
	seedSession(t, mgr, "manylines", "", 1000, []string{"cmd1", "cmd2", "cmd3", "cmd4"})

	var buf bytes.Buffer
	if err := run(mgr, &buf, 2, "", false); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// header + at most 2 data rows
	if len(lines) > 3 {
		t.Errorf("expected at most 3 lines (header + 2 rows), got %d:\n%s", len(lines), buf.String())
	}
}
