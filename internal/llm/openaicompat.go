package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenAIModel = "gpt-4o-mini"
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAICompatBackend calls any OpenAI-compatible chat completions endpoint
// (OpenAI itself, or a self-hosted gateway exposing the same shape) over
// HTTP. baseURL lets it target local/self-hosted inference servers.
type OpenAICompatBackend struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAICompatBackend(apiKey, baseURL, model string) *OpenAICompatBackend {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAICompatBackend{apiKey: apiKey, baseURL: baseURL, model: model, client: &http.Client{Timeout: 60 * time.Second}}
}

func (b *OpenAICompatBackend) Name() string { return "openai-compat" }

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (b *OpenAICompatBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openAIChatMessage{}
	if systemPrompt != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: userPrompt})

	reqBody, err := json.Marshal(openAIChatRequest{Model: b.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}
