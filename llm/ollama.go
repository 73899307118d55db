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

// NewOllama returns a Provider backed by a local or remote Ollama
// instance. Chat uses Ollama's OpenAI-compatible /v1 surface; Embed
// calls Ollama's native /api/embed endpoint directly, since that is
// the documented high-throughput embedding path and avoids Ollama's
// OpenAI-compat layer silently truncating batches.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	return &ollamaProvider{
		base:   newOpenAICompatClient(cfg),
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaProvider struct {
	base   openAICompatClient
	cfg    Config
	client *http.Client
}

func (p *ollamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (p *ollamaProvider) Embed(ctx context.Context, texts []string, dimensions int) ([][]float32, error) {
	model := p.cfg.Model
	body, err := json.Marshal(ollamaEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama embed request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: reading ollama embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var decoded ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("llm: decoding ollama embed response: %w", err)
	}

	return float64sToFloat32s(decoded.Embeddings), nil
}

func float64sToFloat32s(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, vec := range in {
		v := make([]float32, len(vec))
		for j, f := range vec {
			v[j] = float32(f)
		}
		out[i] = v
	}
	return out
}
