package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const googleAPIBase = "https://generativelanguage.googleapis.com"

// NewGoogle returns a Provider for Google's Gemini family. Chat goes
// through Google's OpenAI-compatibility endpoint (same shape the other
// OpenAI-compatible providers use); Embed calls the native
// "models/{model}:embedContent" endpoint per-text, since that is the
// only Google endpoint that accepts outputDimensionality and because
// the OpenAI-compat shim does not expose Google's Matryoshka truncation
// control.
func NewGoogle(cfg Config) Provider {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	chatCfg := cfg
	if chatCfg.BaseURL == "" {
		chatCfg.BaseURL = googleAPIBase + "/v1beta/openai"
	}
	return &googleProvider{
		base:   newOpenAICompatClientPrefix(chatCfg, ""),
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type googleProvider struct {
	base   openAICompatClient
	cfg    Config
	client *http.Client
}

func (p *googleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

type googleEmbedContentRequest struct {
	Content               googleContent `json:"content"`
	OutputDimensionality  int           `json:"outputDimensionality,omitempty"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleEmbedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed issues one embedContent call per text (Google's native endpoint
// does not batch). When a dimension below 3072 is requested, each
// returned vector is L2-normalized, matching the reference behavior for
// truncated Matryoshka embeddings; native-length vectors (dimensions 0)
// are returned as-is.
func (p *googleProvider) Embed(ctx context.Context, texts []string, dimensions int) ([][]float32, error) {
	model := p.cfg.Model
	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s", googleAPIBase, model, p.cfg.APIKey)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		body := googleEmbedContentRequest{
			Content:              googleContent{Parts: []googlePart{{Text: text}}},
			OutputDimensionality: dimensions,
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("llm: google embedContent request failed: %w", err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("llm: reading google embedContent response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var decoded googleEmbedContentResponse
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return nil, fmt.Errorf("llm: decoding google embedContent response: %w", err)
		}

		vec := decoded.Embedding.Values
		if dimensions > 0 && dimensions < 3072 {
			vec = l2Normalize(vec)
		}
		out[i] = vec
	}
	return out, nil
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
