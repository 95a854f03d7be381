// Package interceptor implements the per-byte state machine that carves an
// in-band chat/command channel out of a user's raw keystrokes without ever
// altering what reaches the PTY unless a configured prefix is typed.
package interceptor

// ActionKind identifies what a fed byte produced.
type ActionKind int

const (
	// Forward means Bytes must be written to the PTY master unchanged.
	Forward ActionKind = iota
	// Buffering means a prefix match (or chat input) is underway; nothing
	// is written to the PTY. Buffer holds the accumulated content so far.
	Buffering
	// Chat means Enter was pressed while in chat mode; Buffer holds the
	// trimmed query text.
	Chat
	// Backspace means a buffered character was removed; Buffer holds what
	// remains so the caller can re-render.
	Backspace
	// Cancel means Ctrl-C or Esc was pressed while buffering or chatting;
	// all interceptor state has been cleared.
	Cancel
	// Tab means Tab was pressed in chat mode; Buffer holds the current
	// chat text so the caller can consult ghost-completion state.
	Tab
	// Pending means a partial multi-byte sequence was consumed with no
	// observable effect yet; more bytes are needed before anything fires.
	Pending
)

// Action is the result of feeding one byte into an Interceptor.
type Action struct {
	Kind   ActionKind
	Bytes  []byte // Forward only
	Buffer string // Buffering, Backspace, Chat, Tab
}

const (
	byteEnterCR   = '\r'
	byteEnterLF   = '\n'
	byteBackspace = 0x7f
	byteCtrlH     = 0x08
	byteCtrlC     = 0x03
	byteEsc       = 0x1b
	byteTab       = '\t'
)

// Interceptor is a per-connection byte-fed state machine over a configured
// prefix string (e.g. ":" or "::"). It never buffers more than the prefix
// length plus the in-progress chat line.
type Interceptor struct {
	prefix []byte

	prefixAttempt []byte
	inChat        bool
	chatBuf       []rune

	pendingRune          []byte
	pendingRuneRemaining int
}

// New creates an Interceptor watching for prefix anywhere in the stream of
// otherwise-forwarded keystrokes.
func New(prefix string) *Interceptor {
	return &Interceptor{prefix: []byte(prefix)}
}

// Feed processes one byte from the user's keystroke stream and returns the
// action it produced.
func (ic *Interceptor) Feed(b byte) Action {
	if ic.pendingRuneRemaining > 0 {
		return ic.feedRuneContinuation(b)
	}
	if ic.inChat {
		return ic.feedChat(b)
	}
	return ic.feedPrefixMatch(b)
}

func (ic *Interceptor) feedPrefixMatch(b byte) Action {
	attemptLen := len(ic.prefixAttempt)
	if attemptLen >= len(ic.prefix) {
		// Shouldn't happen: a completed match flips to inChat. Defensive reset.
		ic.prefixAttempt = ic.prefixAttempt[:0]
	}
	if attemptLen > 0 && (b == byteCtrlC || b == byteEsc) {
		ic.reset()
		return Action{Kind: Cancel}
	}
	if b != ic.prefix[attemptLen] {
		return ic.flushMismatch(b)
	}
	ic.prefixAttempt = append(ic.prefixAttempt, b)
	if len(ic.prefixAttempt) < len(ic.prefix) {
		return Action{Kind: Buffering, Buffer: string(ic.prefixAttempt)}
	}
	// Full prefix matched: enter chat mode with an empty line.
	ic.prefixAttempt = ic.prefixAttempt[:0]
	ic.inChat = true
	ic.chatBuf = ic.chatBuf[:0]
	return Action{Kind: Buffering, Buffer: ""}
}

func (ic *Interceptor) flushMismatch(b byte) Action {
	flushed := append(append([]byte(nil), ic.prefixAttempt...), b)
	ic.prefixAttempt = ic.prefixAttempt[:0]
	return Action{Kind: Forward, Bytes: flushed}
}

func (ic *Interceptor) feedChat(b byte) Action {
	switch {
	case b == byteEnterCR || b == byteEnterLF:
		text := trimSpace(string(ic.chatBuf))
		ic.reset()
		return Action{Kind: Chat, Buffer: text}
	case b == byteBackspace || b == byteCtrlH:
		if len(ic.chatBuf) > 0 {
			ic.chatBuf = ic.chatBuf[:len(ic.chatBuf)-1]
		}
		return Action{Kind: Backspace, Buffer: string(ic.chatBuf)}
	case b == byteCtrlC || b == byteEsc:
		ic.reset()
		return Action{Kind: Cancel}
	case b == byteTab:
		return Action{Kind: Tab, Buffer: string(ic.chatBuf)}
	case b >= 0x80:
		return ic.beginRune(b)
	default:
		ic.chatBuf = append(ic.chatBuf, rune(b))
		return Action{Kind: Buffering, Buffer: string(ic.chatBuf)}
	}
}

// beginRune starts accumulating a multi-byte UTF-8 sequence based on the
// lead byte's high bits, returning Pending until all continuation bytes
// have arrived.
func (ic *Interceptor) beginRune(lead byte) Action {
	var want int
	switch {
	case lead&0xE0 == 0xC0:
		want = 1
	case lead&0xF0 == 0xE0:
		want = 2
	case lead&0xF8 == 0xF0:
		want = 3
	default:
		// Invalid lead byte (stray continuation byte, etc.): drop it.
		return Action{Kind: Pending}
	}
	ic.pendingRune = append(ic.pendingRune[:0], lead)
	ic.pendingRuneRemaining = want
	return Action{Kind: Pending}
}

func (ic *Interceptor) feedRuneContinuation(b byte) Action {
	ic.pendingRune = append(ic.pendingRune, b)
	ic.pendingRuneRemaining--
	if ic.pendingRuneRemaining > 0 {
		return Action{Kind: Pending}
	}
	for _, r := range string(ic.pendingRune) {
		ic.chatBuf = append(ic.chatBuf, r)
	}
	ic.pendingRune = ic.pendingRune[:0]
	return Action{Kind: Buffering, Buffer: string(ic.chatBuf)}
}

// CurrentBuffer returns the chat text accumulated so far.
func (ic *Interceptor) CurrentBuffer() string { return string(ic.chatBuf) }

// InChat reports whether a prefix match is currently live.
func (ic *Interceptor) InChat() bool { return ic.inChat }

// InjectByte lets the completion layer commit a suggested suffix back into
// the buffer as if the user had typed it, returning the resulting Buffering
// action. It is only meaningful while InChat() is true.
func (ic *Interceptor) InjectByte(b byte) Action {
	if !ic.inChat {
		return Action{Kind: Forward, Bytes: []byte{b}}
	}
	return ic.feedChat(b)
}

// InjectString commits a whole suggested suffix at once.
func (ic *Interceptor) InjectString(s string) Action {
	var last Action
	for _, r := range s {
		ic.chatBuf = append(ic.chatBuf, r)
		last = Action{Kind: Buffering, Buffer: string(ic.chatBuf)}
	}
	return last
}

func (ic *Interceptor) reset() {
	ic.prefixAttempt = ic.prefixAttempt[:0]
	ic.inChat = false
	ic.chatBuf = ic.chatBuf[:0]
	ic.pendingRune = ic.pendingRune[:0]
	ic.pendingRuneRemaining = 0
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
