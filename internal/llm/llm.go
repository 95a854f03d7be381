// Package llm provides a small pluggable capability for single-shot text
// completion against a backend LLM, used both to answer aggregated-context
// queries and to generate ghost-text completion suggestions. Grounded on
// the teacher's provider adapters (anthropic.go/openai.go), simplified from
// multi-turn tool-calling chat down to the plain system+user completion
// this codebase actually needs.
package llm

import "context"

// Backend is the capability every concrete provider implements.
type Backend interface {
	// Complete sends systemPrompt and userPrompt and returns the model's
	// text reply.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// Config selects and configures a Backend.
type Config struct {
	Kind    string // "anthropic", "openai-compat", "dummy"
	APIKey  string
	BaseURL string // openai-compat only; empty uses the public OpenAI API
	Model   string
}

// New constructs the Backend named by cfg.Kind.
func New(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "", "dummy":
		return NewDummyBackend(), nil
	case "anthropic":
		return NewAnthropicBackend(cfg.APIKey, cfg.Model), nil
	case "openai-compat":
		return NewOpenAICompatBackend(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, unknownBackendError(cfg.Kind)
	}
}

type unknownBackendError string

func (e unknownBackendError) Error() string { return "llm: unknown backend kind " + string(e) }
