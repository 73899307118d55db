// Package llm selects and wraps LLM providers for chat and embedding
// calls. Every provider implements the same Provider interface so the
// rest of the engine never branches on provider identity — dimension
// routing, retry, and batching are all pure functions of what a call
// returns, not of which provider produced it.
package llm

import (
	"context"
	"fmt"
)

// Config configures a single provider endpoint.
type Config struct {
	Provider string // openai, ollama, google, anthropic, openrouter, grok, custom
	Model    string
	BaseURL  string
	APIKey   string
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model          string
	Messages       []Message
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "", or "json_object"
}

// ChatResponse is a provider-agnostic chat completion response.
type ChatResponse struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the capability interface every LLM adapter implements.
// Embed's dimensions parameter is advisory: 0 means "provider native
// dimension"; a provider that cannot honor a requested dimension
// returns its native-length vectors and leaves dimension routing to the
// caller, per the "skip, don't corrupt" contract.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, texts []string, dimensions int) ([][]float32, error)
}

// ErrEmbeddingNotSupported is returned by providers (e.g. Anthropic) that
// only implement chat.
var ErrEmbeddingNotSupported = fmt.Errorf("llm: provider does not support embeddings")

// NewProvider constructs the Provider for cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "google", "gemini":
		return NewGoogle(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "openrouter":
		return NewOpenRouter(cfg), nil
	case "grok", "xai":
		return NewGrok(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// DefaultEmbeddingModel returns the default embedding model name for a
// provider, used when Config.Model is empty.
func DefaultEmbeddingModel(provider string) string {
	switch provider {
	case "ollama":
		return "nomic-embed-text"
	case "google", "gemini":
		return "text-embedding-004"
	default:
		return "text-embedding-3-small"
	}
}
