// Package retrieval implements the hybrid/vector search strategy
// (C15), the reranker strategy (C16), and the RAG coordinator (C17)
// that composes search, optional reranking, and optional page
// grouping into a single query-answering entry point.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/store"
)

// overFetchMultiplier is how much wider the candidate pool is fetched
// when reranking is enabled, so the reranker has room to reorder.
const overFetchMultiplier = 5

// Reranker reorders search results by relevance to the query. In the
// absence of a dedicated cross-encoder model in the stack, it asks the
// chat LLM to score each candidate's relevance directly — a
// cross-encoder-style judgment, not a learned ranking model, but the
// same over-fetch-then-trim contract.
type Reranker struct {
	chat llm.Provider
}

// NewReranker returns a Reranker that scores candidates via chat.
func NewReranker(chat llm.Provider) *Reranker {
	return &Reranker{chat: chat}
}

// Rerank scores candidates against query and returns the top topK,
// highest score first. On any scoring failure, the original order
// (already ranked by the upstream search) is preserved as a fallback.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []store.SearchResult, topK int) []store.SearchResult {
	if len(candidates) == 0 {
		return candidates
	}

	scores, err := r.scoreBatch(ctx, query, candidates)
	if err != nil {
		return truncate(candidates, topK)
	}

	type scored struct {
		result store.SearchResult
		score  float64
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scored{result: c, score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]store.SearchResult, 0, topK)
	for i := 0; i < len(ranked) && i < topK; i++ {
		out = append(out, ranked[i].result)
	}
	return out
}

func (r *Reranker) scoreBatch(ctx context.Context, query string, candidates []store.SearchResult) ([]float64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nScore each candidate's relevance to the query from 0.0 (irrelevant) to 1.0 (highly relevant). Respond with a JSON array of numbers, one per candidate, in order.\n\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&sb, "Candidate %d:\n%s\n\n", i, truncateText(c.Content, 800))
	}

	resp, err := r.chat.Chat(ctx, llm.ChatRequest{
		Messages:       []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:    0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, err
	}

	var scores []float64
	text := strings.TrimSpace(resp.Content)
	// Tolerate either a bare array or {"scores": [...]}.
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &scores); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Scores []float64 `json:"scores"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, err
		}
		scores = wrapped.Scores
	}

	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("retrieval: reranker returned %d scores for %d candidates", len(scores), len(candidates))
	}
	return scores, nil
}

func truncate(results []store.SearchResult, n int) []store.SearchResult {
	if n >= len(results) {
		return results
	}
	return results[:n]
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
