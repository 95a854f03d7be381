package clientrt

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/omnish-sh/omnish/internal/interceptor"
	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/wire"
)

const (
	readChunk    = 32 * 1024
	tickInterval = 50 * time.Millisecond
)

type readResult struct {
	data []byte
	err  error
}

// mainLoop multiplexes stdin and the PTY master for the life of the shell,
// returning the shell's exit code.
func (rt *Runtime) mainLoop() (int, error) {
	stdinCh := make(chan readResult, 16)
	ptyCh := make(chan readResult, 16)

	go readLoop(os.Stdin, stdinCh)
	go readLoop(rt.pty, ptyCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-stdinCh:
			if !open {
				stdinCh = nil
				continue
			}
			if ev.err == nil {
				rt.handleStdin(ev.data)
			}

		case ev, open := <-ptyCh:
			if !open {
				code, err := rt.pty.Wait()
				return code, err
			}
			if ev.err == nil {
				rt.handlePtyOutput(ev.data)
			}

		case <-ticker.C:
			rt.maybeFireCompletion()
		}
	}
}

// readLoop feeds reads from r into ch until it errors, then closes ch. Run
// in its own goroutine per fd.
func readLoop(r io.Reader, ch chan<- readResult) {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			ch <- readResult{data: cp}
		}
		if err != nil {
			close(ch)
			return
		}
	}
}

func (rt *Runtime) handleStdin(data []byte) {
	for _, b := range data {
		action := rt.ic.Feed(b)
		rt.dispatchKeystroke(action)
	}
}

func (rt *Runtime) dispatchKeystroke(action interceptor.Action) {
	switch action.Kind {
	case interceptor.Forward:
		rt.pty.Write(action.Bytes)
		rt.send(wire.IoData{SessionID: rt.sessionID, Direction: wire.DirectionInput, TimestampMs: nowMs(), Data: action.Bytes})
		rt.comp.NoteKeystroke()

	case interceptor.Buffering, interceptor.Backspace:
		// Nothing reaches the PTY while a prefix/chat line is being typed;
		// the caller's terminal UI is responsible for re-rendering from
		// action.Buffer.

	case interceptor.Chat:
		rt.comp.ClearGhost()
		rt.handleChat(action.Buffer)

	case interceptor.Tab:
		if g := rt.comp.GhostText(); g != "" {
			rt.ic.InjectString(g)
			rt.comp.ClearGhost()
		}

	case interceptor.Cancel:
		rt.comp.ClearGhost()

	case interceptor.Pending:
	}
}

func (rt *Runtime) handleChat(query string) {
	if strings.HasPrefix(query, "/") {
		if out, ok := runLocalCommand(query, rt.promptTemplate()); ok {
			rt.printAboveShell(out)
			return
		}
	}

	body, redirectPath := splitRedirect(query)
	req := wire.Request{
		RequestID: rt.sessionID,
		SessionID: rt.sessionID,
		Query:     body,
		Scope:     wire.Scope{Kind: wire.ScopeAllSessions},
	}
	reply, err := rt.call(req)
	if err != nil {
		rt.printAboveShell("error: " + err.Error())
		return
	}
	resp, ok := reply.(wire.Response)
	if !ok {
		return
	}
	if redirectPath != "" {
		if err := writeRedirect(redirectPath, resp.Content); err != nil {
			rt.printAboveShell("error writing " + redirectPath + ": " + err.Error())
		}
		return
	}
	rt.printAboveShell(resp.Content)
}

// promptTemplate is a placeholder inspector hook: the daemon owns the real
// system prompt per backend, so the client only has this for local display.
func (rt *Runtime) promptTemplate() string {
	return "(configured per LLM backend; see " + rt.cfg.Daemon.SocketPath + ")"
}

// printAboveShell writes text to the real stdout so it appears above the
// shell's own prompt without disturbing whatever the shell has drawn.
func (rt *Runtime) printAboveShell(text string) {
	os.Stdout.WriteString("\r\n" + text + "\r\n")
}

func (rt *Runtime) handlePtyOutput(data []byte) {
	// Verbatim to the real terminal first: the zero-interference invariant
	// is non-negotiable, this write can never be delayed by anything below.
	os.Stdout.Write(data)

	posBefore := rt.outputOffset
	rt.outputOffset += int64(len(data))
	records := rt.tr.FeedOutput(data, int64(nowMs()), posBefore)

	if rt.thr.ShouldSend(len(data)) {
		rt.thr.RecordSent(len(data))
		rt.send(wire.IoData{SessionID: rt.sessionID, Direction: wire.DirectionOutput, TimestampMs: nowMs(), Data: data})
	} else {
		logger.Debug("output throttle dropped daemon mirror chunk", "session_id", rt.sessionID, "len", len(data))
	}

	for _, rec := range records {
		rt.send(wire.CommandComplete{SessionID: rt.sessionID, Record: rec})
		rt.thr.Reset()
	}
}

func (rt *Runtime) call(m wire.Message) (wire.Message, error) {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	return rt.rc.Call(ctx, m)
}

func (rt *Runtime) maybeFireCompletion() {
	buf := rt.ic.CurrentBuffer()
	if !rt.ic.InChat() || !rt.comp.ShouldFire(buf) {
		return
	}
	seq := rt.comp.NextSequence()
	reply, err := rt.call(wire.CompletionRequest{
		SessionID:  rt.sessionID,
		Input:      buf,
		CursorPos:  uint32(len(buf)),
		SequenceID: seq,
	})
	if err != nil {
		return
	}
	resp, ok := reply.(wire.CompletionResponse)
	if !ok || len(resp.Suggestions) == 0 {
		return
	}
	best := resp.Suggestions[0]
	for _, s := range resp.Suggestions[1:] {
		if s.Confidence > best.Confidence {
			best = s
		}
	}
	if suggestion, ok := rt.comp.Accept(resp.SequenceID, best.Text); ok {
		rt.renderGhostText(suggestion)
	}
}

// renderGhostText dims and displays a suggested suffix after the cursor,
// saving and restoring cursor position so it never disturbs the user's real
// input line.
func (rt *Runtime) renderGhostText(suggestion string) {
	if suggestion == "" {
		return
	}
	os.Stdout.WriteString("\x1b[s\x1b[2m" + suggestion + "\x1b[0m\x1b[u")
}
