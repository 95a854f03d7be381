// Package promptdetect implements the streaming OSC 133 semantic-prompt
// parser and its regex-based fallback prompt detector.
package promptdetect

import (
	"regexp"
	"strings"
)

// EventKind identifies which boundary a Detector has observed.
type EventKind int

const (
	PromptStart EventKind = iota
	CommandStart
	OutputStart
	CommandEnd
	PromptDetected // fallback-only
)

// Event is emitted by Feed with the byte offset (within the buffer passed to
// Feed) at which the marker occupied, so callers can elide the escape
// sequence bytes from what they keep.
type Event struct {
	Kind       EventKind
	Offset     int
	Length     int
	Command    string // CommandStart only, optional
	Cwd        string // CommandStart only, optional
	ExitCode   int
	HasExit    bool
	LineOffset int // PromptDetected only
}

// parserState tracks where inside an OSC 133 sequence the byte-fed parser
// currently is.
type parserState int

const (
	stateIdle parserState = iota
	stateEsc
	stateBracket
	statePayload // "]133;" then letter then optional ";payload" until BEL
)

// Detector is a byte-fed streaming parser for OSC 133 sequences with a
// line-accumulating regex fallback. A session that has seen any OSC 133
// event switches permanently into OSC mode (OSCSeen()).
type Detector struct {
	state   parserState
	escBuf  []byte
	payload []byte
	letter  byte

	oscSeen bool

	// fallback state
	lineBuf []byte
	lineOff int // stream offset where lineBuf started accumulating
}

// New returns a fresh Detector.
func New() *Detector {
	return &Detector{}
}

// OSCSeen reports whether this detector has ever matched a real OSC 133
// sequence; once true, callers should stop invoking the fallback path.
func (d *Detector) OSCSeen() bool { return d.oscSeen }

const (
	esc = 0x1b
	bel = 0x07
)

// Feed processes buf (a chunk of raw shell output) starting at absolute
// stream offset baseOffset, and returns any OSC 133 events found, each
// tagged with its absolute offset/length in the stream. Malformed payloads
// are dropped silently; the parser never desynchronizes — a broken sequence
// simply returns to idle and resumes byte-by-byte scanning.
func (d *Detector) Feed(buf []byte, baseOffset int) []Event {
	var events []Event
	i := 0
	for i < len(buf) {
		b := buf[i]
		switch d.state {
		case stateIdle:
			if b == esc {
				d.state = stateEsc
				d.escBuf = d.escBuf[:0]
				d.escBuf = append(d.escBuf, b)
				d.payload = d.payload[:0]
			}
		case stateEsc:
			d.escBuf = append(d.escBuf, b)
			if b == ']' {
				d.state = stateBracket
			} else {
				d.state = stateIdle
			}
		case stateBracket:
			d.escBuf = append(d.escBuf, b)
			// Expect "133;X" — accumulate until BEL, or bail on another ESC.
			if b == bel {
				// escBuf = [ESC, ']', ... , BEL]; strip both ends for the body.
				body := string(d.escBuf[1 : len(d.escBuf)-1])
				seqOffset := baseOffset + i - len(d.escBuf) + 1
				seqLength := len(d.escBuf)
				ev, ok := d.finishSequence(body, seqOffset, seqLength)
				if ok {
					events = append(events, ev)
					d.oscSeen = true
				}
				d.state = stateIdle
			} else if b == esc {
				d.state = stateIdle
				// re-enter esc state for this new escape
				d.state = stateEsc
				d.escBuf = d.escBuf[:0]
				d.escBuf = append(d.escBuf, b)
			} else if len(d.escBuf) > 512 {
				// runaway sequence; abandon to avoid unbounded buffering
				d.state = stateIdle
			}
		}
		i++
	}
	return events
}

// finishSequence parses the accumulated "133;X[;payload]" body (escBuf with
// its leading ESC and trailing BEL removed, so it still begins with ']') and
// returns the structured event.
func (d *Detector) finishSequence(body string, offset, length int) (Event, bool) {
	// body currently begins with ']' then "133;X..."; strip leading ']'.
	body = strings.TrimPrefix(body, "]")
	if !strings.HasPrefix(body, "133;") {
		return Event{}, false
	}
	rest := body[len("133;"):]
	if rest == "" {
		return Event{}, false
	}
	letter := rest[0]
	var payload string
	if len(rest) > 1 && rest[1] == ';' {
		payload = rest[2:]
	}
	ev := Event{Offset: offset, Length: length}
	switch letter {
	case 'A':
		ev.Kind = PromptStart
	case 'B':
		ev.Kind = CommandStart
		cmd, cwd := parseCommandStartPayload(payload)
		ev.Command = cmd
		ev.Cwd = cwd
	case 'C':
		ev.Kind = OutputStart
	case 'D':
		ev.Kind = CommandEnd
		if payload != "" {
			code, err := parseInt(payload)
			if err == nil {
				ev.ExitCode = code
				ev.HasExit = true
			}
		}
	default:
		return Event{}, false
	}
	return ev, true
}

// parseCommandStartPayload splits "<cmdline>;cwd:<path>" honoring backslash-
// escaped semicolons inside each field. Both fields are optional.
func parseCommandStartPayload(payload string) (cmd, cwd string) {
	parts := splitUnescaped(payload, ';')
	for i, p := range parts {
		p = unescapeSemicolons(p)
		if strings.HasPrefix(p, "cwd:") {
			cwd = strings.TrimPrefix(p, "cwd:")
		} else if i == 0 {
			cmd = p
		}
	}
	return cmd, cwd
}

func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			cur.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			cur.WriteByte(c)
			continue
		}
		if c == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, cur.String())
	return parts
}

func unescapeSemicolons(s string) string {
	return strings.ReplaceAll(s, "\\;", ";")
}

func parseInt(s string) (int, error) {
	n := 0
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, errNotInt
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errNotInt
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

type parseErr string

func (e parseErr) Error() string { return string(e) }

const errNotInt = parseErr("not an integer")

// --- fallback regex prompt detector ---

var csiStripRe = regexp.MustCompile("\x1b\\[[0-9;?]*[ -/]*[@-~]")

// promptTailRe matches a trailing shell prompt character, possibly followed
// by trailing whitespace. testFallbackLine additionally requires at least
// two CSI-stripped characters on the line so a lone stray "$" does not
// false-positive, while a real prompt like "$ " (sigil plus its trailing
// space) still matches.
var promptTailRe = regexp.MustCompile(`[$#%❯]\s*$`)

// FeedFallbackLine accumulates raw bytes into a line buffer and, on each
// newline, tests the completed line against the prompt heuristic; an
// unterminated line is tested with TestFallbackPartial. absOffset is the
// absolute stream offset of b; the offset of the line's first byte is
// reported as the event's LineOffset.
func (d *Detector) FeedFallbackLine(b byte, absOffset int) (Event, bool) {
	if len(d.lineBuf) == 0 {
		d.lineOff = absOffset
	}
	if b == '\n' {
		line := string(d.lineBuf)
		d.lineBuf = d.lineBuf[:0]
		return d.testFallbackLine(line)
	}
	if b != '\r' {
		d.lineBuf = append(d.lineBuf, b)
	}
	return Event{}, false
}

// TestFallbackPartial checks the in-progress (unterminated) line buffer —
// used when a shell writes a prompt without a trailing newline, which is
// the common case for an interactive prompt.
func (d *Detector) TestFallbackPartial() (Event, bool) {
	return d.testFallbackLine(string(d.lineBuf))
}

func (d *Detector) testFallbackLine(line string) (Event, bool) {
	stripped := csiStripRe.ReplaceAllString(line, "")
	if len(stripped) < 2 || !promptTailRe.MatchString(stripped) {
		return Event{}, false
	}
	return Event{Kind: PromptDetected, LineOffset: d.lineOff}, true
}

// ResetFallbackLine clears the in-progress fallback line buffer, e.g. after
// a PromptDetected match so the next line starts fresh.
func (d *Detector) ResetFallbackLine() {
	d.lineBuf = d.lineBuf[:0]
}
