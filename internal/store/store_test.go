package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/omnish-sh/omnish/internal/wire"
)

func TestStreamWriterPositionAndReadRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.bin")
	sw, err := CreateStreamWriter(path)
	if err != nil {
		t.Fatalf("CreateStreamWriter: %v", err)
	}
	defer sw.Close()

	pos1, err := sw.WriteEntry(1000, DirectionOutput, []byte("$ "))
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if pos1 != 0 {
		t.Errorf("first write pos = %d, want 0", pos1)
	}
	pos2, err := sw.WriteEntry(1001, DirectionInput, []byte("ls -la\r\n"))
	if err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if pos2 != sw.Position()-int64((13+len("ls -la\r\n"))) {
		t.Errorf("second write pos mismatch: %d", pos2)
	}

	entries, err := ReadRange(path, 0, sw.Position())
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Direction != DirectionOutput || string(entries[0].Data) != "$ " {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Direction != DirectionInput || string(entries[1].Data) != "ls -la\r\n" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestReadRangeIgnoresTrailingPartialEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.bin")
	sw, err := CreateStreamWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	sw.WriteEntry(1, DirectionOutput, []byte("hello"))
	sw.WriteEntry(2, DirectionOutput, []byte("world"))
	sw.Close()

	full, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Ask for one byte less than the full file: the second entry's trailing
	// byte is missing, so only the first entry should come back.
	entries, err := ReadRange(path, 0, int64(len(full)-1))
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (trailing partial ignored)", len(entries))
	}
}

func TestMetaSaveLoad(t *testing.T) {
	dir := t.TempDir()
	m := SessionMeta{
		SessionID:   "abcd1234",
		Shell:       "/bin/bash",
		Cwd:         "/home/u",
		StartedAtMs: 1000,
		Attrs:       map[string]string{"hostname": "box1"},
	}
	if err := SaveMeta(dir, m); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	got, err := LoadMeta(dir)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if got.SessionID != m.SessionID || got.Shell != m.Shell || got.Attrs["hostname"] != "box1" {
		t.Errorf("LoadMeta = %+v, want %+v", got, m)
	}
}

func TestCommandsSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := []wire.CommandRecord{
		{CommandID: "s1:0", SessionID: "s1", CommandLine: "ls -la", Cwd: "/home/u",
			StartedAtMs: 1000, EndedAtMs: 1002, HasEndedAt: true,
			OutputSummary: "total 0\nfile.txt", StreamOffset: 0, StreamLength: 30,
			ExitCode: 0, HasExitCode: true},
	}
	if err := SaveAllCommands(dir, records); err != nil {
		t.Fatalf("SaveAllCommands: %v", err)
	}
	got, err := LoadAllCommands(dir)
	if err != nil {
		t.Fatalf("LoadAllCommands: %v", err)
	}
	if len(got) != 1 || got[0].CommandLine != "ls -la" || got[0].ExitCode != 0 || !got[0].HasExitCode {
		t.Errorf("round trip = %+v", got)
	}
}

func TestCommandsLoadMissingFileYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	got, err := LoadAllCommands(dir)
	if err != nil {
		t.Fatalf("LoadAllCommands on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}
