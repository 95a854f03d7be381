package clientrt

import "time"

const (
	completionDebounce = 500 * time.Millisecond
	completionMinChars = 2
)

// CompletionState tracks the debounce timer and strictly monotonic sequence
// ids that drive ghost-completion requests, plus the suggestion currently
// rendered after the cursor.
type CompletionState struct {
	nextSeq       uint64
	newestSeenSeq uint64
	haveSeen      bool
	lastKeystroke time.Time
	ghostText     string
	now           func() time.Time
}

// NewCompletionState creates an idle CompletionState.
func NewCompletionState() *CompletionState {
	return &CompletionState{now: time.Now}
}

// NoteKeystroke records that the user typed, clearing any stale ghost text.
func (c *CompletionState) NoteKeystroke() {
	c.lastKeystroke = c.now()
	c.ghostText = ""
}

// ShouldFire reports whether a debounced completion request should fire now
// for the given current input: at least completionMinChars typed, and at
// least completionDebounce elapsed since the last keystroke with no request
// sent for it yet.
func (c *CompletionState) ShouldFire(input string) bool {
	if len([]rune(input)) < completionMinChars {
		return false
	}
	if c.lastKeystroke.IsZero() {
		return false
	}
	return c.now().Sub(c.lastKeystroke) >= completionDebounce
}

// NextSequence allocates the next strictly monotonic sequence id and
// consumes the pending debounce so ShouldFire won't refire until another
// keystroke arrives.
func (c *CompletionState) NextSequence() uint64 {
	c.nextSeq++
	c.lastKeystroke = time.Time{}
	return c.nextSeq
}

// Accept records an incoming CompletionResponse. Responses older than the
// newest one already seen are dropped (ok=false); otherwise the suggestion
// becomes the rendered ghost text.
func (c *CompletionState) Accept(sequenceID uint64, suggestion string) (ghostText string, ok bool) {
	if c.haveSeen && sequenceID < c.newestSeenSeq {
		return "", false
	}
	c.newestSeenSeq = sequenceID
	c.haveSeen = true
	c.ghostText = suggestion
	return suggestion, true
}

// GhostText returns the suggestion currently pending acceptance by the user.
func (c *CompletionState) GhostText() string { return c.ghostText }

// ClearGhost discards the current suggestion, e.g. after the user accepts or
// keeps typing past it.
func (c *CompletionState) ClearGhost() { c.ghostText = "" }
