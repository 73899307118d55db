// Package store persists sources, crawled-page chunks, and code
// examples to Postgres+pgvector (C10, C11), and exposes the
// hybrid-search RPC contract the retrieval package calls (C15).
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvectorpgx "github.com/pgvector/pgvector-go/pgx"
)

// Source is a row in archon_sources.
type Source struct {
	SourceID          string
	SourceURL         string
	SourceDisplayName string
	Title             string
	Summary           string
	TotalWordCount    int
	Metadata          map[string]any
}

// Chunk is a row in archon_crawled_pages.
type Chunk struct {
	URL                string
	ChunkNumber        int
	SourceID           string
	Content            string
	Metadata           map[string]any
	Embedding          []float32
	EmbeddingDimension int
	EmbeddingModel     string
	LLMChatModel       string
}

// CodeExample is a row in archon_code_examples.
type CodeExample struct {
	URL                string
	ChunkNumber        int
	SourceID           string
	Content            string
	Summary            string
	Metadata           map[string]any
	Embedding          []float32
	EmbeddingDimension int
	EmbeddingModel     string
	LLMChatModel       string
}

// SearchResult is one row returned by a hybrid or vector search, for
// either chunks or code examples.
type SearchResult struct {
	ID          int64
	URL         string
	ChunkNumber int
	Content     string
	Summary     string // set only for code example results
	Metadata    map[string]any
	SourceID    string
	Similarity  float64
	MatchType   string // "vector", "text", or "both"
}

// Store wraps a pgxpool.Pool for all ragcore persistence.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, registers the pgvector type on every
// pooled connection, and runs pending migrations before returning.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := migrate(databaseURL); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parsing database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvectorpgx.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable, for the health
// endpoint's schema-probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// embeddingColumn returns the column name for a supported dimension,
// or "" if the dimension isn't one of the four supported widths — the
// caller's signal to skip the row rather than corrupt it.
func embeddingColumn(dimension int) string {
	switch dimension {
	case 768:
		return "embedding_768"
	case 1024:
		return "embedding_1024"
	case 1536:
		return "embedding_1536"
	case 3072:
		return "embedding_3072"
	default:
		return ""
	}
}
