package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/ratelimit"
	"github.com/archonrag/ragcore/settings"
)

type fakeProvider struct {
	embedFn func(ctx context.Context, texts []string, dim int) ([][]float32, error)
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: "CHUNK 0: this is a test document"}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	return f.embedFn(ctx, texts, dim)
}

func newTestService(p llm.Provider) *Service {
	return New(p, ratelimit.New(3000, 200000, 2), settings.New(nil))
}

func TestCreateEmbeddingsAllSucceed(t *testing.T) {
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string, dim int) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 2, 3}
		}
		return out, nil
	}}
	s := newTestService(p)

	result, err := s.CreateEmbeddings(context.Background(), []string{"a", "b", "c"}, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 3 || result.FailureCount != 0 {
		t.Fatalf("want 3 success 0 failure, got %+v", result)
	}
	if result.TotalRequested() != 3 {
		t.Fatalf("total requested mismatch: %d", result.TotalRequested())
	}
}

func TestCreateEmbeddingsPartialFailureNeverCorrupts(t *testing.T) {
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string, dim int) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			if i%2 == 0 {
				out[i] = []float32{1}
			}
		}
		return out, nil
	}}
	s := newTestService(p)

	result, err := s.CreateEmbeddings(context.Background(), []string{"a", "b", "c", "d"}, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount+result.FailureCount != 4 {
		t.Fatalf("success+failure must equal len(texts): %+v", result)
	}
	if result.SuccessCount != 2 || result.FailureCount != 2 {
		t.Fatalf("want 2/2 split, got %+v", result)
	}
}

func TestCreateEmbeddingsQuotaExhaustedStopsAndFailsRemaining(t *testing.T) {
	calls := 0
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string, dim int) ([][]float32, error) {
		calls++
		return nil, &llm.APIError{StatusCode: 429, Body: `{"error":{"code":"insufficient_quota"}}`}
	}}
	s := newTestService(p)
	s.cache.Preset(map[string]string{settings.KeyEmbeddingBatchSize: "1"})

	result, err := s.CreateEmbeddings(context.Background(), []string{"a", "b", "c"}, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FailureCount != 3 {
		t.Fatalf("want all 3 marked failed after quota exhaustion, got %+v", result)
	}
	if calls != 1 {
		t.Fatalf("want exactly 1 provider call before stopping, got %d", calls)
	}
	for _, f := range result.FailedItems {
		if f.ErrorType != errorType(ErrQuotaExhausted) {
			t.Fatalf("want ErrQuotaExhausted error type, got %s", f.ErrorType)
		}
	}
}

func TestCreateEmbeddingsGenericFailureContinuesToNextBatch(t *testing.T) {
	batchNum := 0
	p := &fakeProvider{embedFn: func(ctx context.Context, texts []string, dim int) ([][]float32, error) {
		batchNum++
		if batchNum == 1 {
			return nil, errors.New("transient provider error")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1}
		}
		return out, nil
	}}
	s := newTestService(p)
	s.cache.Preset(map[string]string{settings.KeyEmbeddingBatchSize: "1"})

	result, err := s.CreateEmbeddings(context.Background(), []string{"a", "b"}, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuccessCount != 1 || result.FailureCount != 1 {
		t.Fatalf("want 1 success 1 failure, got %+v", result)
	}
}

func TestContextualizeFallsBackOnError(t *testing.T) {
	c := NewContextualizer(&erroringChatProvider{}, settings.New(nil))
	pairs := []ContextualPair{{Document: "doc", Chunk: "chunk text"}}
	results := c.Contextualize(context.Background(), pairs)
	if results[0].Contextualized {
		t.Fatal("expected fallback to un-contextualized on chat error")
	}
	if results[0].Text != "chunk text" {
		t.Fatalf("expected original chunk text preserved, got %q", results[0].Text)
	}
}

type erroringChatProvider struct{}

func (erroringChatProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("boom")
}
func (erroringChatProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	return nil, errors.New("not used")
}

func TestParseChunkContexts(t *testing.T) {
	text := "CHUNK 0: intro section\nCHUNK 1: conclusion"
	out := parseChunkContexts(text, 2)
	if out[0] != "intro section" || out[1] != "conclusion" {
		t.Fatalf("unexpected parse: %+v", out)
	}
}
