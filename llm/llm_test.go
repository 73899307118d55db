package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "nope"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDefaultEmbeddingModel(t *testing.T) {
	cases := map[string]string{
		"ollama": "nomic-embed-text",
		"google": "text-embedding-004",
		"openai": "text-embedding-3-small",
		"":       "text-embedding-3-small",
	}
	for provider, want := range cases {
		if got := DefaultEmbeddingModel(provider); got != want {
			t.Errorf("DefaultEmbeddingModel(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestOpenAICompatEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{}
		resp.Data = []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{
			{Embedding: []float32{2}, Index: 1},
			{Embedding: []float32{1}, Index: 0},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAI(Config{BaseURL: srv.URL, Model: "text-embedding-3-small"})
	vecs, err := p.Embed(context.Background(), []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Fatalf("embeddings not reordered by index: %+v", vecs)
	}
}

func TestOpenAICompatChatReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"},"finish_reason":"stop"}],"model":"m"}`))
	}))
	defer srv.Close()

	p := NewOpenAI(Config{BaseURL: srv.URL})
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hello"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hi" {
		t.Fatalf("want hi, got %q", resp.Content)
	}
}

func TestOpenAICompatChatErrorsOnNonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	p := NewOpenAI(Config{BaseURL: srv.URL})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAnthropicEmbedUnsupported(t *testing.T) {
	p := NewAnthropic(Config{})
	_, err := p.Embed(context.Background(), []string{"x"}, 0)
	if err != ErrEmbeddingNotSupported {
		t.Fatalf("want ErrEmbeddingNotSupported, got %v", err)
	}
}

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})
	if v[0] < 0.599 || v[0] > 0.601 {
		t.Fatalf("want ~0.6, got %v", v[0])
	}
}
