package llm

import (
	"context"
	"fmt"
	"strings"
)

// DummyBackend is a deterministic offline stand-in, used when the backend
// kind is empty or "dummy", when the daemon cannot resolve a configured
// backend, and for tests that exercise the request/response plumbing
// without a network dependency.
type DummyBackend struct{}

func NewDummyBackend() *DummyBackend { return &DummyBackend{} }

func (DummyBackend) Name() string { return "dummy" }

func (DummyBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	trimmed := strings.TrimSpace(userPrompt)
	if trimmed == "" {
		return "", nil
	}
	return fmt.Sprintf("[dummy backend] saw %d chars of context, query: %s", len(systemPrompt), trimmed), nil
}
