package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/omnish-sh/omnish/internal/omnerr"
	"github.com/omnish-sh/omnish/internal/wire"
)

const commandsFileName = "commands.json"

// commandRecordJSON mirrors wire.CommandRecord with JSON tags and optional
// pointer fields, so an absent cwd/command_line/exit_code round-trips as
// absent rather than an empty string/zero.
type commandRecordJSON struct {
	CommandID     string  `json:"command_id"`
	SessionID     string  `json:"session_id"`
	CommandLine   *string `json:"command_line,omitempty"`
	Cwd           *string `json:"cwd,omitempty"`
	StartedAtMs   uint64  `json:"started_at_ms"`
	EndedAtMs     *uint64 `json:"ended_at_ms,omitempty"`
	OutputSummary string  `json:"output_summary,omitempty"`
	StreamOffset  uint64  `json:"stream_offset"`
	StreamLength  uint64  `json:"stream_length"`
	ExitCode      *int32  `json:"exit_code,omitempty"`
}

func toJSON(r wire.CommandRecord) commandRecordJSON {
	j := commandRecordJSON{
		CommandID:     r.CommandID,
		SessionID:     r.SessionID,
		StartedAtMs:   r.StartedAtMs,
		OutputSummary: r.OutputSummary,
		StreamOffset:  r.StreamOffset,
		StreamLength:  r.StreamLength,
	}
	if r.CommandLine != "" {
		j.CommandLine = &r.CommandLine
	}
	if r.Cwd != "" {
		j.Cwd = &r.Cwd
	}
	if r.HasEndedAt {
		j.EndedAtMs = &r.EndedAtMs
	}
	if r.HasExitCode {
		j.ExitCode = &r.ExitCode
	}
	return j
}

func fromJSON(j commandRecordJSON) wire.CommandRecord {
	r := wire.CommandRecord{
		CommandID:     j.CommandID,
		SessionID:     j.SessionID,
		StartedAtMs:   j.StartedAtMs,
		OutputSummary: j.OutputSummary,
		StreamOffset:  j.StreamOffset,
		StreamLength:  j.StreamLength,
	}
	if j.CommandLine != nil {
		r.CommandLine = *j.CommandLine
	}
	if j.Cwd != nil {
		r.Cwd = *j.Cwd
	}
	if j.EndedAtMs != nil {
		r.EndedAtMs = *j.EndedAtMs
		r.HasEndedAt = true
	}
	if j.ExitCode != nil {
		r.ExitCode = *j.ExitCode
		r.HasExitCode = true
	}
	return r
}

// SaveAllCommands overwrites commands.json in dir with records.
func SaveAllCommands(dir string, records []wire.CommandRecord) error {
	out := make([]commandRecordJSON, len(records))
	for i, r := range records {
		out[i] = toJSON(r)
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return omnerr.New("store.SaveAllCommands", omnerr.StoreIo, err)
	}
	if err := os.WriteFile(filepath.Join(dir, commandsFileName), b, 0o600); err != nil {
		return omnerr.New("store.SaveAllCommands", omnerr.StoreIo, err)
	}
	return nil
}

// LoadAllCommands reads commands.json from dir. A missing file yields an
// empty list, not an error; a malformed file is reported as StoreCorrupt so
// callers (e.g. cleanup) can treat the directory conservatively.
func LoadAllCommands(dir string) ([]wire.CommandRecord, error) {
	b, err := os.ReadFile(filepath.Join(dir, commandsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, omnerr.New("store.LoadAllCommands", omnerr.StoreIo, err)
	}
	var raw []commandRecordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, omnerr.New("store.LoadAllCommands", omnerr.StoreCorrupt, err)
	}
	out := make([]wire.CommandRecord, len(raw))
	for i, j := range raw {
		out[i] = fromJSON(j)
	}
	return out, nil
}
