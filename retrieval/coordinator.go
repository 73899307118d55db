package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/archonrag/ragcore/llm"
	"github.com/archonrag/ragcore/settings"
	"github.com/archonrag/ragcore/store"
)

// ReturnMode selects whether PerformRAGQuery returns raw chunks or
// pages aggregated from their chunks.
type ReturnMode string

const (
	ReturnChunks ReturnMode = "chunks"
	ReturnPages  ReturnMode = "pages"
)

// Page is an aggregated result when ReturnMode is ReturnPages: one row
// per (page_id or url), with similarity and match-count rolled up
// across every contributing chunk.
type Page struct {
	PageID              string
	URL                 string
	SectionTitle        string
	WordCount           int
	ChunkMatches        int
	AggregateSimilarity float64
	AverageSimilarity   float64
	SourceID            string
}

// QueryResult is the coordinator's return value: exactly one of Chunks
// or Pages is populated, matching the requested ReturnMode.
type QueryResult struct {
	Chunks []store.SearchResult
	Pages  []Page
}

// Coordinator composes embedding, search, optional reranking, and
// optional page grouping into the single RAG query entry point.
type Coordinator struct {
	embedProvider llm.Provider
	store         *store.Store
	reranker      *Reranker
	cache         *settings.Cache
}

// NewCoordinator returns a Coordinator. embedProvider embeds the query
// text; st performs the actual search.
func NewCoordinator(embedProvider llm.Provider, st *store.Store, reranker *Reranker, cache *settings.Cache) *Coordinator {
	return &Coordinator{embedProvider: embedProvider, store: st, reranker: reranker, cache: cache}
}

// PerformRAGQuery embeds query, searches (hybrid if enabled, else plain
// vector), optionally reranks, and optionally groups into pages.
func (c *Coordinator) PerformRAGQuery(ctx context.Context, query string, sourceFilter string, matchCount int, mode ReturnMode) (*QueryResult, error) {
	if matchCount < 1 {
		matchCount = 10
	}

	dimension := c.cache.GetInt(ctx, settings.KeyEmbeddingDimensions, 1536)
	vectors, err := c.embedProvider.Embed(ctx, []string{query}, dimension)
	if err != nil || len(vectors) == 0 {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}
	queryEmbedding := vectors[0]

	useReranking := c.cache.GetBool(ctx, settings.KeyUseReranking, false)
	fetchCount := matchCount
	if useReranking && c.reranker != nil {
		fetchCount = matchCount * overFetchMultiplier
	}

	var results []store.SearchResult
	if c.cache.GetBool(ctx, settings.KeyUseHybridSearch, true) {
		results, err = c.store.HybridSearchChunks(ctx, queryEmbedding, dimension, query, fetchCount, sourceFilter)
	} else {
		results, err = c.store.VectorSearchChunks(ctx, queryEmbedding, dimension, fetchCount, sourceFilter)
	}
	if err != nil {
		return nil, err
	}

	if useReranking && c.reranker != nil {
		results = c.reranker.Rerank(ctx, query, results, matchCount)
	} else if len(results) > matchCount {
		results = results[:matchCount]
	}

	if mode == ReturnPages && anyHasPageID(results) {
		return &QueryResult{Pages: groupByPage(results, matchCount)}, nil
	}
	return &QueryResult{Chunks: results}, nil
}

// SearchCodeExamples is the code-table analogue, gated by
// USE_AGENTIC_RAG at the caller's discretion.
func (c *Coordinator) SearchCodeExamples(ctx context.Context, query string, sourceFilter string, matchCount int) ([]store.SearchResult, error) {
	if matchCount < 1 {
		matchCount = 10
	}
	dimension := c.cache.GetInt(ctx, settings.KeyEmbeddingDimensions, 1536)
	vectors, err := c.embedProvider.Embed(ctx, []string{query}, dimension)
	if err != nil || len(vectors) == 0 {
		return nil, fmt.Errorf("retrieval: embedding query: %w", err)
	}
	return c.store.HybridSearchCodeExamples(ctx, vectors[0], dimension, query, matchCount, sourceFilter)
}

func anyHasPageID(results []store.SearchResult) bool {
	for _, r := range results {
		if pid, ok := r.Metadata["page_id"]; ok && pid != nil && pid != "" {
			return true
		}
	}
	return false
}

// groupByPage aggregates chunk-level results into page-level results:
// aggregate_similarity = mean(sim) * (1 + min(0.2, chunk_matches*0.02)),
// keeping the topK highest-scoring pages.
func groupByPage(results []store.SearchResult, topK int) []Page {
	type acc struct {
		page      Page
		simTotal  float64
		simCount  int
	}
	groups := make(map[string]*acc)
	var order []string

	for _, r := range results {
		key := pageKey(r)
		g, ok := groups[key]
		if !ok {
			g = &acc{page: Page{
				PageID:   stringMeta(r.Metadata, "page_id"),
				URL:      r.URL,
				SourceID: r.SourceID,
			}}
			if title := stringMeta(r.Metadata, "section_title"); title != "" {
				g.page.SectionTitle = title
			}
			groups[key] = g
			order = append(order, key)
		}
		g.simTotal += r.Similarity
		g.simCount++
		g.page.ChunkMatches++
		if wc, ok := r.Metadata["word_count"].(float64); ok {
			g.page.WordCount += int(wc)
		}
	}

	pages := make([]Page, 0, len(order))
	for _, key := range order {
		g := groups[key]
		avg := g.simTotal / float64(g.simCount)
		bump := math.Min(0.2, float64(g.page.ChunkMatches)*0.02)
		g.page.AverageSimilarity = avg
		g.page.AggregateSimilarity = avg * (1 + bump)
		pages = append(pages, g.page)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].AggregateSimilarity > pages[j].AggregateSimilarity })
	if len(pages) > topK {
		pages = pages[:topK]
	}
	return pages
}

func pageKey(r store.SearchResult) string {
	if pid := stringMeta(r.Metadata, "page_id"); pid != "" {
		return pid
	}
	return r.URL
}

func stringMeta(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
