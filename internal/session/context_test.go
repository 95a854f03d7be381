package session

import (
	"strings"
	"testing"

	"github.com/omnish-sh/omnish/internal/store"
)

// TestGetSessionContextRendersStreamOutput verifies context assembly reads
// the finalized record's byte range out of stream.bin (rather than reusing
// a precomputed summary) and ANSI-strips it before handing it to the
// formatter.
func TestGetSessionContextRendersStreamOutput(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Register("s1", "", map[string]string{"cwd": "/home/u"}, 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteIO("s1", 1001, store.DirectionOutput, []byte("\x1b]133;A\x07$ ")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteIO("s1", 1002, store.DirectionInput, []byte("ls\r\n")); err != nil {
		t.Fatal(err)
	}
	cmdOut := []byte("\x1b]133;B;ls\x07\x1b]133;C\x07\x1b[32mfile.txt\x1b[0m\r\n")
	if _, err := m.WriteIO("s1", 1003, store.DirectionOutput, cmdOut); err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteIO("s1", 1004, store.DirectionOutput, []byte("\x1b]133;D;0\x07")); err != nil {
		t.Fatal(err)
	}

	ctx, err := m.GetSessionContext("s1", nil, nil, 0)
	if err != nil {
		t.Fatalf("GetSessionContext: %v", err)
	}
	if !strings.Contains(ctx, "file.txt") {
		t.Errorf("expected rendered output to contain file.txt, got %q", ctx)
	}
	if strings.Contains(ctx, "\x1b[32m") {
		t.Errorf("expected ANSI color codes stripped, got %q", ctx)
	}
}

func TestDefaultFormatterUnknownCommandLine(t *testing.T) {
	meta := store.SessionMeta{SessionID: "s1"}
	out := DefaultFormatter{}.Format(meta, []CommandContext{{CommandLine: ""}})
	if !strings.Contains(out, "$ (unknown)") {
		t.Errorf("expected (unknown) placeholder, got %q", out)
	}
}

func TestGetAllSessionsContextPrefixesSessionID(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Register("s1", "", nil, 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.Register("s2", "", nil, 1001); err != nil {
		t.Fatal(err)
	}
	out := m.GetAllSessionsContext(nil, nil, 0)
	if !strings.Contains(out, "=== Session s1 ===") {
		t.Errorf("missing s1 header in %q", out)
	}
	if !strings.Contains(out, "=== Session s2 ===") {
		t.Errorf("missing s2 header in %q", out)
	}
}
