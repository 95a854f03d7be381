package session

import (
	"testing"
	"time"

	"github.com/omnish-sh/omnish/internal/store"
)

func TestRegisterIdempotent(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Register("s1", "", map[string]string{"shell": "/bin/bash"}, 1000); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register("s1", "", map[string]string{"cwd": "/home/u"}, 2000); err != nil {
		t.Fatalf("second Register: %v", err)
	}
	m.mu.RLock()
	as := m.sessions["s1"]
	m.mu.RUnlock()
	if as.Meta.Attrs["shell"] != "/bin/bash" || as.Meta.Attrs["cwd"] != "/home/u" {
		t.Errorf("attrs not merged: %+v", as.Meta.Attrs)
	}
	if len(m.sessions) != 1 {
		t.Errorf("expected one session, got %d", len(m.sessions))
	}
}

func TestWriteIOProducesCommandRecords(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Register("s1", "", map[string]string{"cwd": "/home/u"}, 1000); err != nil {
		t.Fatal(err)
	}
	prompt1 := []byte("\x1b]133;A\x07$ ")
	if _, err := m.WriteIO("s1", 1001, store.DirectionOutput, prompt1); err != nil {
		t.Fatalf("WriteIO prompt: %v", err)
	}
	if _, err := m.WriteIO("s1", 1002, store.DirectionInput, []byte("echo hi\r\n")); err != nil {
		t.Fatal(err)
	}
	cmdStart := []byte("\x1b]133;B;echo hi\x07\x1b]133;C\x07hi\r\n")
	if _, err := m.WriteIO("s1", 1003, store.DirectionOutput, cmdStart); err != nil {
		t.Fatal(err)
	}
	prompt2 := []byte("\x1b]133;D;0\x07\x1b]133;A\x07$ ")
	records, err := m.WriteIO("s1", 1004, store.DirectionOutput, prompt2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 finalized record, got %d: %+v", len(records), records)
	}
	if records[0].SessionID != "s1" {
		t.Errorf("record session = %q", records[0].SessionID)
	}

	loaded, err := store.LoadAllCommands(m.sessions["s1"].Dir)
	if err != nil {
		t.Fatalf("LoadAllCommands: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("persisted %d records, want 1", len(loaded))
	}
}

func TestWriteIOUnregisteredSessionFails(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	if _, err := m.WriteIO("missing", 1, store.DirectionOutput, []byte("x")); err == nil {
		t.Fatal("expected error for unregistered session")
	}
}

func TestEndSessionRemovesFromActiveMap(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	if err := m.Register("s1", "", nil, 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.EndSession("s1", 2000); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	m.mu.RLock()
	_, ok := m.sessions["s1"]
	m.mu.RUnlock()
	if ok {
		t.Error("session still active after EndSession")
	}
}

func TestEvictInactive(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	m.Register("s1", "", nil, 1000)
	m.Register("s2", "", nil, 5000)
	evicted := m.EvictInactive(3000, 6000)
	if len(evicted) != 1 || evicted[0] != "s1" {
		t.Errorf("evicted = %v, want [s1]", evicted)
	}
	m.mu.RLock()
	_, s2ok := m.sessions["s2"]
	m.mu.RUnlock()
	if !s2ok {
		t.Error("s2 should still be active")
	}
}

func TestCleanupExpiredDirsRemovesExpired(t *testing.T) {
	base := t.TempDir()
	m, _ := NewManager(base)
	m.Register("old", "", nil, 1000)
	m.EndSession("old", 1000)

	removed, err := m.CleanupExpiredDirs(time.Millisecond, time.UnixMilli(1000).Add(time.Hour))
	if err != nil {
		t.Fatalf("CleanupExpiredDirs: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("removed = %v, want 1 entry", removed)
	}
}

func TestGetSessionContextRecentSelector(t *testing.T) {
	m, _ := NewManager(t.TempDir())
	m.Register("s1", "", map[string]string{"cwd": "/home/u"}, 1000)

	ctx, err := m.GetSessionContext("s1", Recent{N: 5}, DefaultFormatter{}, 0)
	if err != nil {
		t.Fatalf("GetSessionContext: %v", err)
	}
	if ctx == "" {
		t.Error("expected non-empty context header even with no commands")
	}
}

func TestListLeafSessions(t *testing.T) {
	base := t.TempDir()
	m, _ := NewManager(base)
	m.Register("parent", "", nil, 1000)
	m.Register("child", "parent", nil, 1001)
	m.EndSession("parent", 2000)
	m.EndSession("child", 2000)

	leaves, err := m.ListLeafSessions()
	if err != nil {
		t.Fatalf("ListLeafSessions: %v", err)
	}
	if len(leaves) != 1 || leaves[0] != "child" {
		t.Errorf("leaves = %v, want [child]", leaves)
	}
}
