package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/store"
)

type fakeChat struct {
	content string
	err     error
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content}, nil
}
func (f *fakeChat) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	return nil, errors.New("not used")
}

func TestRerankOrdersByScore(t *testing.T) {
	candidates := []store.SearchResult{
		{ID: 1, Content: "a"},
		{ID: 2, Content: "b"},
		{ID: 3, Content: "c"},
	}
	r := NewReranker(&fakeChat{content: "[0.1, 0.9, 0.5]"})
	out := r.Rerank(context.Background(), "query", candidates, 2)
	if len(out) != 2 || out[0].ID != 2 || out[1].ID != 3 {
		t.Fatalf("unexpected rerank order: %+v", out)
	}
}

func TestRerankFallsBackToOriginalOrderOnError(t *testing.T) {
	candidates := []store.SearchResult{{ID: 1}, {ID: 2}}
	r := NewReranker(&fakeChat{err: errors.New("boom")})
	out := r.Rerank(context.Background(), "query", candidates, 2)
	if len(out) != 2 || out[0].ID != 1 || out[1].ID != 2 {
		t.Fatalf("expected original order preserved on error, got %+v", out)
	}
}

func TestGroupByPageAggregatesSimilarity(t *testing.T) {
	results := []store.SearchResult{
		{URL: "https://x/doc", Similarity: 0.8, Metadata: map[string]any{"page_id": "p1"}},
		{URL: "https://x/doc", Similarity: 0.6, Metadata: map[string]any{"page_id": "p1"}},
		{URL: "https://x/other", Similarity: 0.9, Metadata: map[string]any{"page_id": "p2"}},
	}
	pages := groupByPage(results, 10)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	for _, p := range pages {
		if p.PageID == "p1" {
			wantAvg := 0.7
			if p.AverageSimilarity < wantAvg-0.001 || p.AverageSimilarity > wantAvg+0.001 {
				t.Fatalf("expected avg similarity ~0.7, got %f", p.AverageSimilarity)
			}
			if p.ChunkMatches != 2 {
				t.Fatalf("expected 2 chunk matches, got %d", p.ChunkMatches)
			}
		}
	}
}

func TestGroupByPageFallsBackToURLWithoutPageID(t *testing.T) {
	results := []store.SearchResult{
		{URL: "https://x/doc", Similarity: 0.5, Metadata: map[string]any{}},
	}
	pages := groupByPage(results, 10)
	if len(pages) != 1 || pages[0].URL != "https://x/doc" {
		t.Fatalf("expected url-keyed page, got %+v", pages)
	}
}
