package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/omnish-sh/omnish/internal/llm"
	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/wire"
)

// handle is the transport.HandlerFunc routing every authenticated frame to
// the session manager, a builtin, or the LLM backend.
func (d *Daemon) handle(msg wire.Message) wire.Message {
	switch m := msg.(type) {
	case wire.SessionStart:
		if err := d.mgr.Register(m.SessionID, m.ParentSessionID, m.Attrs, int64(m.TimestampMs)); err != nil {
			logger.Error("session_start failed", "session_id", m.SessionID, "err", err)
		}
		return wire.Ack{}

	case wire.SessionEnd:
		if err := d.mgr.EndSession(m.SessionID, int64(m.TimestampMs)); err != nil {
			logger.Error("session_end failed", "session_id", m.SessionID, "err", err)
		}
		return wire.Ack{}

	case wire.SessionUpdate:
		if err := d.mgr.UpdateAttrs(m.SessionID, m.Attrs); err != nil {
			logger.Error("session_update failed", "session_id", m.SessionID, "err", err)
		}
		return wire.Ack{}

	case wire.IoData:
		if _, err := d.mgr.WriteIO(m.SessionID, int64(m.TimestampMs), m.Direction, m.Data); err != nil {
			logger.Error("io_data failed", "session_id", m.SessionID, "err", err)
		}
		return wire.Ack{}

	case wire.CommandComplete:
		if err := d.mgr.ReceiveCommand(m.SessionID, m.Record); err != nil {
			logger.Error("command_complete failed", "session_id", m.SessionID, "err", err)
		}
		return wire.Ack{}

	case wire.Event:
		logger.Debug("event received", "session_id", m.SessionID, "kind", m.Kind)
		return wire.Ack{}

	case wire.Request:
		return d.handleRequest(m)

	case wire.CompletionRequest:
		return d.handleCompletionRequest(m)

	default:
		return wire.Ack{}
	}
}

const (
	cmdPrefix   = "__cmd:"
	debugPrefix = "__debug:"
)

func (d *Daemon) handleRequest(req wire.Request) wire.Message {
	switch {
	case hasPrefix(req.Query, cmdPrefix):
		content := d.runBuiltinCmd(req.Query[len(cmdPrefix):])
		return wire.Response{RequestID: req.RequestID, Content: content, IsFinal: true}
	case hasPrefix(req.Query, debugPrefix):
		content := d.runDebugQuery(req.Query[len(debugPrefix):])
		return wire.Response{RequestID: req.RequestID, Content: content, IsFinal: true}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sessionContext := d.resolveContext(req.SessionID, req.Scope)
	reply, err := d.currentBackend().Complete(ctx, sessionContext, req.Query)
	if err != nil {
		return wire.Response{RequestID: req.RequestID, Content: "Error: " + err.Error(), IsFinal: true}
	}
	return wire.Response{RequestID: req.RequestID, Content: reply, IsFinal: true}
}

func (d *Daemon) resolveContext(currentSessionID string, scope wire.Scope) string {
	switch scope.Kind {
	case wire.ScopeAllSessions:
		return d.mgr.GetAllSessionsContext(nil, nil, 0)
	case wire.ScopeSessions:
		var combined string
		for _, id := range scope.Sessions {
			block, err := d.mgr.GetSessionContext(id, nil, nil, 0)
			if err != nil {
				continue
			}
			combined += block + "\n"
		}
		return combined
	default:
		block, err := d.mgr.GetSessionContext(currentSessionID, nil, nil, 0)
		if err != nil {
			return ""
		}
		return block
	}
}

func (d *Daemon) handleCompletionRequest(req wire.CompletionRequest) wire.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionContext, err := d.mgr.GetSessionContext(req.SessionID, nil, nil, 4000)
	if err != nil {
		sessionContext = ""
	}
	prompt := buildCompletionPrompt(sessionContext, req.Input, req.CursorPos)

	reply, err := d.currentBackend().Complete(ctx, completionSystemPrompt, prompt)
	if err != nil {
		logger.Warn("completion request failed", "err", err)
		return wire.CompletionResponse{SequenceID: req.SequenceID}
	}

	suggestions, err := llm.ParseSuggestions(reply)
	if err != nil {
		return wire.CompletionResponse{SequenceID: req.SequenceID}
	}

	out := make([]wire.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, wire.Suggestion{Text: s.Text, Confidence: s.Confidence})
	}
	return wire.CompletionResponse{SequenceID: req.SequenceID, Suggestions: out}
}

const completionSystemPrompt = "You complete shell commands. Reply with a strict JSON array of " +
	"at most 3 objects shaped {\"text\":string,\"confidence\":number}, ranked best first. No prose."

func buildCompletionPrompt(sessionContext, input string, cursorPos uint32) string {
	return fmt.Sprintf("Recent session activity:\n%s\n\nCurrent input (cursor at byte %d):\n%s",
		sessionContext, cursorPos, input)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
