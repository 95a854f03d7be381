// Package tracker converts a session's I/O bytes plus prompt/OSC events into
// a sequence of finalized CommandRecords.
package tracker

import (
	"fmt"
	"strings"

	"github.com/omnish-sh/omnish/internal/promptdetect"
	"github.com/omnish-sh/omnish/internal/wire"
)

const (
	headLines = 10
	tailLines = 10
	maxLines  = 20
)

type pendingCommand struct {
	seq            int
	startedAt      int64
	streamOffset   int64
	inputBuf       []byte
	outputLines    []string
	outputLineBuf  []byte
	entered        bool
	oscCommandLine string
	oscCwd         string
	hasOsc         bool
}

// Tracker holds the per-session command-segmentation state machine.
type Tracker struct {
	SessionID   string
	FallbackCwd string

	pending         *pendingCommand
	nextSeq         int
	seenFirstPrompt bool
	oscMode         bool

	detector *promptdetect.Detector
}

// New creates a Tracker for sessionID, with fallbackCwd used for records
// whose cwd is not supplied by an OSC 133 B payload.
func New(sessionID, fallbackCwd string) *Tracker {
	return &Tracker{
		SessionID:   sessionID,
		FallbackCwd: fallbackCwd,
		detector:    promptdetect.New(),
	}
}

// SetFallbackCwd updates the cwd used when no OSC cwd override is present.
func (t *Tracker) SetFallbackCwd(cwd string) { t.FallbackCwd = cwd }

// FeedInput accumulates user keystrokes for the command currently being
// typed (fallback-mode command-line extraction).
func (t *Tracker) FeedInput(data []byte, ts int64) {
	if t.pending != nil {
		t.pending.inputBuf = append(t.pending.inputBuf, data...)
	}
}

// FeedOutput processes a chunk of shell output written at absolute stream
// offset posBefore and returns any CommandRecords finalized as a result.
// Record boundaries fall on posBefore, the offset of the chunk's StreamEntry
// in stream.bin, so every record's range covers whole entries.
func (t *Tracker) FeedOutput(data []byte, ts int64, posBefore int64) []wire.CommandRecord {
	events := t.detector.Feed(data, int(posBefore))
	if len(events) > 0 {
		t.oscMode = true
	}

	var finalized []wire.CommandRecord

	if !t.oscMode && !t.detector.OSCSeen() {
		finalized = append(finalized, t.feedFallback(data, ts, posBefore)...)
		return finalized
	}

	// OSC mode: walk the chunk in order, splitting on event boundaries so
	// output bytes are attributed to the correct side of each marker.
	cursor := 0
	absBase := int(posBefore)
	for _, ev := range events {
		segStart := ev.Offset - absBase
		if segStart < 0 {
			segStart = 0
		}
		if segStart > cursor {
			t.appendOutputContent(data[cursor:segStart], ts)
		}
		boundary := ev
		boundary.Offset, boundary.Length = int(posBefore), 0
		if rec, ok := t.applyOSCEvent(boundary, ts); ok {
			finalized = append(finalized, rec)
		}
		cursor = segStart + ev.Length
		if cursor > len(data) {
			cursor = len(data)
		}
	}
	if cursor < len(data) {
		t.appendOutputContent(data[cursor:], ts)
	}
	return finalized
}

func (t *Tracker) appendOutputContent(b []byte, ts int64) {
	if t.pending == nil || !t.pending.entered {
		return // shell echo before the command was actually entered
	}
	t.pending.outputLineBuf = append(t.pending.outputLineBuf, b...)
	for {
		idx := indexByte(t.pending.outputLineBuf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(t.pending.outputLineBuf[:idx]), "\r")
		t.pending.outputLines = append(t.pending.outputLines, line)
		t.pending.outputLineBuf = t.pending.outputLineBuf[idx+1:]
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (t *Tracker) applyOSCEvent(ev promptdetect.Event, ts int64) (wire.CommandRecord, bool) {
	switch ev.Kind {
	case promptdetect.PromptStart:
		rec, ok := t.finalizePending(ts, int64(ev.Offset), nil)
		t.openPending(ts, int64(ev.Offset+ev.Length))
		return rec, ok
	case promptdetect.CommandStart:
		if t.pending == nil {
			t.openPending(ts, int64(ev.Offset+ev.Length))
		}
		t.pending.entered = true
		t.pending.hasOsc = true
		t.pending.oscCommandLine = ev.Command
		t.pending.oscCwd = ev.Cwd
		return wire.CommandRecord{}, false
	case promptdetect.CommandEnd:
		var exit *int32
		if ev.HasExit {
			v := int32(ev.ExitCode)
			exit = &v
		}
		rec, ok := t.finalizePending(ts, int64(ev.Offset), exit)
		t.pending = nil // a new pending opens only at the next PromptStart
		return rec, ok
	default:
		return wire.CommandRecord{}, false
	}
}

func (t *Tracker) openPending(ts, streamOffset int64) {
	t.seenFirstPrompt = true
	t.nextSeq++
	t.pending = &pendingCommand{
		seq:          t.nextSeq - 1,
		startedAt:    ts,
		streamOffset: streamOffset,
	}
}

func (t *Tracker) finalizePending(ts, endOffset int64, exitCode *int32) (wire.CommandRecord, bool) {
	p := t.pending
	if p == nil {
		return wire.CommandRecord{}, false
	}
	cmdLine := p.oscCommandLine
	if cmdLine == "" {
		cmdLine = extractCommandLine(p.inputBuf)
	}
	cwd := p.oscCwd
	if cwd == "" {
		cwd = t.FallbackCwd
	}
	rec := wire.CommandRecord{
		CommandID:     fmt.Sprintf("%s:%d", t.SessionID, p.seq),
		SessionID:     t.SessionID,
		CommandLine:   cmdLine,
		Cwd:           cwd,
		StartedAtMs:   uint64(p.startedAt),
		EndedAtMs:     uint64(ts),
		HasEndedAt:    true,
		OutputSummary: summarize(p.outputLines),
		StreamOffset:  uint64(p.streamOffset),
		StreamLength:  uint64(endOffset - p.streamOffset),
	}
	if exitCode != nil {
		rec.ExitCode = *exitCode
		rec.HasExitCode = true
	}
	return rec, true
}

func (t *Tracker) feedFallback(data []byte, ts int64, posBefore int64) []wire.CommandRecord {
	var finalized []wire.CommandRecord
	for i, b := range data {
		abs := int(posBefore) + i
		if t.pending != nil {
			t.pending.outputLineBuf = append(t.pending.outputLineBuf, b)
			if b == '\n' {
				line := strings.TrimRight(string(t.pending.outputLineBuf), "\r\n")
				t.pending.outputLines = append(t.pending.outputLines, line)
				t.pending.outputLineBuf = nil
			}
		}
		_, matched := t.detector.FeedFallbackLine(b, abs)
		if !matched {
			continue
		}
		if rec, ok := t.onFallbackPrompt(ts, posBefore); ok {
			finalized = append(finalized, rec)
		}
	}

	// A real shell prints its prompt with no trailing newline, so the
	// newline-triggered match above never fires for it: test whatever line
	// is still buffered once the whole chunk has been consumed.
	if _, matched := t.detector.TestFallbackPartial(); matched {
		if rec, ok := t.onFallbackPrompt(ts, posBefore); ok {
			finalized = append(finalized, rec)
		}
		t.detector.ResetFallbackLine()
	}
	return finalized
}

// onFallbackPrompt handles a detected fallback prompt boundary at the given
// stream offset: the first prompt of a session only opens a pending command,
// every later one finalizes the current pending command and opens the next.
func (t *Tracker) onFallbackPrompt(ts int64, boundary int64) (wire.CommandRecord, bool) {
	if !t.seenFirstPrompt {
		t.openPending(ts, boundary)
		return wire.CommandRecord{}, false
	}
	rec, ok := t.finalizePending(ts, boundary, nil)
	t.openPending(ts, boundary)
	return rec, ok
}

// extractCommandLine trims whitespace from accumulated input bytes and
// returns its first line, or "" if empty.
func extractCommandLine(input []byte) string {
	s := strings.TrimSpace(string(input))
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// summarize formats output lines with head/tail truncation.
func summarize(lines []string) string {
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	head := lines[:headLines]
	tail := lines[len(lines)-tailLines:]
	omitted := len(lines) - headLines - tailLines
	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))
	fmt.Fprintf(&b, "\n… (%d lines omitted) …\n", omitted)
	b.WriteString(strings.Join(tail, "\n"))
	return b.String()
}
