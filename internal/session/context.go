package session

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/omnish-sh/omnish/internal/ansirender"
	"github.com/omnish-sh/omnish/internal/store"
	"github.com/omnish-sh/omnish/internal/wire"
)

// DefaultRecentCount is the number of most-recent commands a Recent
// selector keeps when no explicit count is given.
const DefaultRecentCount = 10

// DefaultContextBudgetBytes bounds the formatted context handed to an LLM
// backend. Formatting drops the oldest surviving command first when the
// budget is exceeded, matching the truncate-oldest-first idiom used
// elsewhere in this codebase for bounded, lossy summarization.
const DefaultContextBudgetBytes = 12000

// CommandSelector narrows a session's full command history down to the
// subset worth sending to an LLM backend.
type CommandSelector interface {
	Select(records []wire.CommandRecord) []wire.CommandRecord
}

// Recent selects the last N commands, in chronological order.
type Recent struct{ N int }

func (r Recent) Select(records []wire.CommandRecord) []wire.CommandRecord {
	n := r.N
	if n <= 0 {
		n = DefaultRecentCount
	}
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

// CommandContext is one command's fully assembled context block: its
// command line, working directory, timing, and ANSI-rendered output, ready
// for a ContextFormatter. Output is read straight from the session's
// stream.bin byte range rather than the tracker's precomputed summary, so
// it reflects what the terminal actually displayed.
type CommandContext struct {
	CommandLine string
	Cwd         string
	StartedAtMs uint64
	EndedAtMs   uint64
	HasExitCode bool
	ExitCode    int32
	Output      string
}

// maxContextOutputLines bounds how much of one command's rendered output
// reaches the formatter; truncation keeps the head and tail, matching the
// tracker's own output_summary idiom.
const maxContextOutputLines = 20
const headContextOutputLines = 10
const tailContextOutputLines = 10

// ContextFormatter renders a session's metadata and assembled commands into
// the plain-text block a Request handler hands to the LLM backend.
type ContextFormatter interface {
	Format(meta store.SessionMeta, commands []CommandContext) string
}

// DefaultFormatter renders a "session <id> (cwd <dir>)" line, then per
// command, oldest first, a "$ command_line" header (followed by "  [cwd]"
// when the command's cwd differs from the session's, and "  (exit N)" for a
// nonzero exit code) and its rendered output.
type DefaultFormatter struct{}

func (DefaultFormatter) Format(meta store.SessionMeta, commands []CommandContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s", meta.SessionID)
	if meta.Cwd != "" {
		fmt.Fprintf(&b, " (cwd %s)", meta.Cwd)
	}
	b.WriteString("\n")
	for _, c := range commands {
		line := c.CommandLine
		if line == "" {
			line = "(unknown)"
		}
		fmt.Fprintf(&b, "$ %s", line)
		if c.Cwd != "" && c.Cwd != meta.Cwd {
			fmt.Fprintf(&b, "  [%s]", c.Cwd)
		}
		if c.HasExitCode && c.ExitCode != 0 {
			fmt.Fprintf(&b, "  (exit %d)", c.ExitCode)
		}
		b.WriteString("\n")
		if out := truncateOutputLines(c.Output); out != "" {
			b.WriteString(out)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// truncateOutputLines caps rendered output at maxContextOutputLines,
// keeping the head and tail with an omission marker in between.
func truncateOutputLines(output string) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxContextOutputLines {
		return output
	}
	head := lines[:headContextOutputLines]
	tail := lines[len(lines)-tailContextOutputLines:]
	omitted := len(lines) - headContextOutputLines - tailContextOutputLines
	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))
	fmt.Fprintf(&b, "\n… (%d lines omitted) …\n", omitted)
	b.WriteString(strings.Join(tail, "\n"))
	return b.String()
}

// buildCommandContexts reads each record's stream.bin byte range, keeps only
// direction-1 (output) entries, and renders them to plain text via
// ansirender — the spec's §4.7.1 context-assembly path.
func buildCommandContexts(dir string, records []wire.CommandRecord) []CommandContext {
	streamPath := filepath.Join(dir, "stream.bin")
	out := make([]CommandContext, len(records))
	for i, r := range records {
		out[i] = CommandContext{
			CommandLine: r.CommandLine,
			Cwd:         r.Cwd,
			StartedAtMs: r.StartedAtMs,
			EndedAtMs:   r.EndedAtMs,
			HasExitCode: r.HasExitCode,
			ExitCode:    r.ExitCode,
			Output:      renderRecordOutput(streamPath, r),
		}
	}
	return out
}

// renderRecordOutput reads r's [StreamOffset, StreamOffset+StreamLength)
// range from streamPath, concatenates its direction-1 entries, and renders
// them through the terminal emulator to plain text.
func renderRecordOutput(streamPath string, r wire.CommandRecord) string {
	if r.StreamLength == 0 {
		return ""
	}
	entries, err := store.ReadRange(streamPath, int64(r.StreamOffset), int64(r.StreamLength))
	if err != nil {
		return ""
	}
	var raw []byte
	for _, e := range entries {
		if e.Direction != store.DirectionOutput {
			continue
		}
		raw = append(raw, e.Data...)
	}
	if len(raw) == 0 {
		return ""
	}
	return ansirender.PlainText(raw)
}

// GetSessionContext assembles an LLM-ready context block for one session
// using selector (defaults to Recent{DefaultRecentCount}) and formatter
// (defaults to DefaultFormatter), truncated to budgetBytes (defaults to
// DefaultContextBudgetBytes) by dropping the oldest selected command first.
func (m *Manager) GetSessionContext(sessionID string, selector CommandSelector, formatter ContextFormatter, budgetBytes int) (string, error) {
	m.mu.RLock()
	as, ok := m.sessions[sessionID]
	var meta store.SessionMeta
	var records []wire.CommandRecord
	var dir string
	if ok {
		meta = as.Meta
		records = append(records, as.Commands...)
		dir = as.Dir
	}
	m.mu.RUnlock()
	if !ok {
		var err error
		meta, records, dir, err = m.loadEndedSession(sessionID)
		if err != nil {
			return "", err
		}
	}

	return assembleContext(meta, dir, records, selector, formatter, budgetBytes), nil
}

// GetAllSessionsContext assembles context blocks for every currently active
// session, most recently active first, each prefixed with
// "=== Session <id> ===", jointly bounded by budgetBytes.
func (m *Manager) GetAllSessionsContext(selector CommandSelector, formatter ContextFormatter, budgetBytes int) string {
	m.mu.RLock()
	type entry struct {
		meta     store.SessionMeta
		dir      string
		records  []wire.CommandRecord
		lastSeen int64
	}
	entries := make([]entry, 0, len(m.sessions))
	for _, as := range m.sessions {
		entries = append(entries, entry{meta: as.Meta, dir: as.Dir, records: append([]wire.CommandRecord(nil), as.Commands...), lastSeen: as.LastActivityMs})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].lastSeen > entries[j].lastSeen })

	if budgetBytes <= 0 {
		budgetBytes = DefaultContextBudgetBytes
	}
	remaining := budgetBytes
	var blocks []string
	for _, e := range entries {
		if remaining <= 0 {
			break
		}
		block := assembleContext(e.meta, e.dir, e.records, selector, formatter, remaining)
		if block == "" {
			continue
		}
		block = fmt.Sprintf("=== Session %s ===\n%s", e.meta.SessionID, block)
		blocks = append(blocks, block)
		remaining -= len(block)
	}
	return strings.Join(blocks, "\n")
}

func assembleContext(meta store.SessionMeta, dir string, records []wire.CommandRecord, selector CommandSelector, formatter ContextFormatter, budgetBytes int) string {
	if selector == nil {
		selector = Recent{N: DefaultRecentCount}
	}
	if formatter == nil {
		formatter = DefaultFormatter{}
	}
	if budgetBytes <= 0 {
		budgetBytes = DefaultContextBudgetBytes
	}

	commands := buildCommandContexts(dir, selector.Select(records))
	for {
		block := formatter.Format(meta, commands)
		if len(block) <= budgetBytes || len(commands) == 0 {
			return block
		}
		commands = commands[1:]
	}
}

// loadEndedSession reads meta.json/commands.json for a session that is no
// longer active, by scanning BaseDir for its directory.
func (m *Manager) loadEndedSession(sessionID string) (store.SessionMeta, []wire.CommandRecord, string, error) {
	dirs, err := findSessionDir(m.BaseDir, sessionID)
	if err != nil || dirs == "" {
		return store.SessionMeta{}, nil, "", notFoundErr(sessionID)
	}
	meta, err := store.LoadMeta(dirs)
	if err != nil {
		return store.SessionMeta{}, nil, "", err
	}
	records, err := store.LoadAllCommands(dirs)
	if err != nil {
		return store.SessionMeta{}, nil, "", err
	}
	return meta, records, dirs, nil
}
