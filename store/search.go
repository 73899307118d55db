package store

import (
	"context"
	"encoding/json"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
)

// HybridSearchChunks calls the hybrid_search_archon_crawled_pages RPC,
// which combines vector cosine similarity on the column matching
// dimension with full-text tsvector match, returning rows annotated
// with match_type ∈ {vector, text, both}. sourceFilter restricts to one
// source when non-empty.
func (s *Store) HybridSearchChunks(ctx context.Context, queryEmbedding []float32, dimension int, queryText string, matchCount int, sourceFilter string) ([]SearchResult, error) {
	var sourceArg any
	if sourceFilter != "" {
		sourceArg = sourceFilter
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, url, chunk_number, content, metadata, source_id, similarity, match_type
		FROM hybrid_search_archon_crawled_pages($1, $2, $3, $4, $5)
	`, pgvector.NewVector(queryEmbedding), queryText, dimension, matchCount, sourceArg)
	if err != nil {
		return nil, fmt.Errorf("store: hybrid search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var meta []byte
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &meta, &r.SourceID, &r.Similarity, &r.MatchType); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// HybridSearchCodeExamples is the code-table equivalent of
// HybridSearchChunks, gated by USE_AGENTIC_RAG at the caller.
func (s *Store) HybridSearchCodeExamples(ctx context.Context, queryEmbedding []float32, dimension int, queryText string, matchCount int, sourceFilter string) ([]SearchResult, error) {
	var sourceArg any
	if sourceFilter != "" {
		sourceArg = sourceFilter
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, url, chunk_number, content, summary, metadata, source_id, similarity, match_type
		FROM hybrid_search_archon_code_examples($1, $2, $3, $4, $5)
	`, pgvector.NewVector(queryEmbedding), queryText, dimension, matchCount, sourceArg)
	if err != nil {
		return nil, fmt.Errorf("store: hybrid search code examples: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var meta []byte
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &r.Summary, &meta, &r.SourceID, &r.Similarity, &r.MatchType); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// VectorSearchChunks performs plain cosine-similarity search (the
// "base vector" path used when hybrid search is disabled), ordering by
// distance on the column matching dimension.
func (s *Store) VectorSearchChunks(ctx context.Context, queryEmbedding []float32, dimension int, matchCount int, sourceFilter string) ([]SearchResult, error) {
	col := embeddingColumn(dimension)
	if col == "" {
		return nil, fmt.Errorf("store: unsupported embedding dimension %d", dimension)
	}

	query := fmt.Sprintf(`
		SELECT id, url, chunk_number, content, metadata, source_id, 1 - (%s <=> $1) AS similarity, 'vector'
		FROM archon_crawled_pages
		WHERE %s IS NOT NULL AND ($3 = '' OR source_id = $3)
		ORDER BY %s <=> $1
		LIMIT $2
	`, col, col, col)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), matchCount, sourceFilter)
	if err != nil {
		return nil, fmt.Errorf("store: vector search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var meta []byte
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content, &meta, &r.SourceID, &r.Similarity, &r.MatchType); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
