package session

import (
	"path/filepath"
	"testing"

	"github.com/omnish-sh/omnish/internal/wire"
)

func TestIndexUpsertAndFailedCommands(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()

	if err := idx.UpsertSession("s1", "", "/tmp/s1", 1000); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	rec := wire.CommandRecord{
		CommandID: "s1:0", SessionID: "s1", CommandLine: "make test", Cwd: "/repo",
		StartedAtMs: 1000, EndedAtMs: 1005, HasEndedAt: true,
		ExitCode: 1, HasExitCode: true,
	}
	if err := idx.UpsertCommand(rec); err != nil {
		t.Fatalf("UpsertCommand: %v", err)
	}

	failed, err := idx.FailedCommandsSince(0)
	if err != nil {
		t.Fatalf("FailedCommandsSince: %v", err)
	}
	if len(failed) != 1 || failed[0].CommandLine != "make test" || failed[0].ExitCode != 1 {
		t.Errorf("failed = %+v", failed)
	}

	// Upserting again with a passing exit code should remove it from the
	// failed-commands view.
	rec.ExitCode = 0
	if err := idx.UpsertCommand(rec); err != nil {
		t.Fatalf("UpsertCommand (update): %v", err)
	}
	failed, err = idx.FailedCommandsSince(0)
	if err != nil {
		t.Fatalf("FailedCommandsSince: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("failed after fix = %+v, want none", failed)
	}
}

func TestIndexRebuildFromDisk(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Register("s1", "", nil, 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.EndSession("s1", 2000); err != nil {
		t.Fatal(err)
	}

	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if err := idx.Rebuild(base); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var count int
	if err := idx.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE session_id = ?", "s1").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected session s1 in rebuilt index, count=%d", count)
	}
}
