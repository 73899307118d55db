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

const anthropicAPIBase = "https://api.anthropic.com"

// NewAnthropic returns a Provider for Claude models. Anthropic has no
// embeddings endpoint, so Embed always returns ErrEmbeddingNotSupported
// — callers must route embedding traffic to a different provider, which
// the LLM Client Factory's per-concern provider selection already
// supports (chat and embedding are configured independently).
func NewAnthropic(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	return &anthropicProvider{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}
}

type anthropicProvider struct {
	cfg    Config
	client *http.Client
}

type anthropicMessagesRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	// Anthropic separates a leading "system" message from the turn list.
	var system string
	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == "system" {
		system = messages[0].Content
		messages = messages[1:]
	}

	body, err := json.Marshal(anthropicMessagesRequest{
		Model:     model,
		Messages:  messages,
		System:    system,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: reading anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var decoded anthropicMessagesResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("llm: decoding anthropic response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return nil, fmt.Errorf("llm: empty anthropic response")
	}

	return &ChatResponse{
		Content:          decoded.Content[0].Text,
		Model:            model,
		FinishReason:     decoded.StopReason,
		PromptTokens:     decoded.Usage.InputTokens,
		CompletionTokens: decoded.Usage.OutputTokens,
		TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
	}, nil
}

func (p *anthropicProvider) Embed(ctx context.Context, texts []string, dimensions int) ([][]float32, error) {
	return nil, ErrEmbeddingNotSupported
}
