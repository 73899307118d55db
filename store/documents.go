package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

const (
	deleteInterBatchSleep = 50 * time.Millisecond
	insertMaxRetries      = 3
	insertBaseDelay       = 1 * time.Second
)

// DeleteChunksByURL removes every archon_crawled_pages row for the
// given urls, batched by batchSize (default 50, clamped >=1) with a
// short sleep between batches. On a batch error it retries that slice
// with a fifth the batch size rather than aborting the whole delete.
func (s *Store) DeleteChunksByURL(ctx context.Context, urls []string, batchSize int) error {
	return s.deleteByURL(ctx, "archon_crawled_pages", urls, batchSize)
}

// DeleteCodeExamplesByURL is the code-table equivalent of
// DeleteChunksByURL, used at the start of a re-extract for a source.
func (s *Store) DeleteCodeExamplesByURL(ctx context.Context, urls []string, batchSize int) error {
	return s.deleteByURL(ctx, "archon_code_examples", urls, batchSize)
}

func (s *Store) deleteByURL(ctx context.Context, table string, urls []string, batchSize int) error {
	if batchSize < 1 {
		batchSize = 50
	}
	if len(urls) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE url = ANY($1)`, table)

	for start := 0; start < len(urls); start += batchSize {
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		if _, err := s.pool.Exec(ctx, query, batch); err != nil {
			fallbackSize := batchSize / 5
			if fallbackSize < 1 {
				fallbackSize = 1
			}
			for fs := 0; fs < len(batch); fs += fallbackSize {
				fe := fs + fallbackSize
				if fe > len(batch) {
					fe = len(batch)
				}
				// Best-effort: a failing sub-batch is skipped, not fatal —
				// the write phase's own failure handling governs overall success.
				s.pool.Exec(ctx, query, batch[fs:fe])
			}
		}

		if end < len(urls) {
			time.Sleep(deleteInterBatchSleep)
		}
	}
	return nil
}

// InsertChunks writes chunks in slices, retrying a failing slice with
// exponential backoff (1, 2, 4s) up to insertMaxRetries times, and
// finally falling back to inserting one row at a time so a single
// corrupt row cannot lose the whole batch. Chunks whose embedding
// dimension isn't one of the four supported widths are skipped. Returns
// the number of rows actually stored.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = 50
	}

	stored := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		slice := chunks[start:end]

		n, err := s.insertChunkSliceWithRetry(ctx, slice)
		stored += n
		if err != nil {
			return stored, err
		}
	}
	return stored, nil
}

func (s *Store) insertChunkSliceWithRetry(ctx context.Context, slice []Chunk) (int, error) {
	var lastErr error
	delay := insertBaseDelay
	for attempt := 0; attempt <= insertMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err := s.insertChunkSlice(ctx, slice); err == nil {
			return countEligible(slice, func(c Chunk) bool { return embeddingColumn(c.EmbeddingDimension) != "" }), nil
		} else {
			lastErr = err
		}
	}

	// Final fallback: one row at a time.
	stored := 0
	for _, c := range slice {
		if embeddingColumn(c.EmbeddingDimension) == "" {
			continue
		}
		if err := s.insertChunkSlice(ctx, []Chunk{c}); err == nil {
			stored++
		}
	}
	if stored == 0 && lastErr != nil {
		return 0, lastErr
	}
	return stored, nil
}

func (s *Store) insertChunkSlice(ctx context.Context, slice []Chunk) error {
	batch := &pgx.Batch{}
	n := 0
	for _, c := range slice {
		col := embeddingColumn(c.EmbeddingDimension)
		if col == "" {
			continue // unsupported dimension: skip, don't corrupt
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("store: marshaling chunk metadata: %w", err)
		}
		query := fmt.Sprintf(`
			INSERT INTO archon_crawled_pages (url, chunk_number, source_id, content, metadata, %s, embedding_dimension, embedding_model, llm_chat_model)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (url, chunk_number) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				%s = excluded.%s,
				embedding_dimension = excluded.embedding_dimension,
				embedding_model = excluded.embedding_model,
				llm_chat_model = excluded.llm_chat_model
		`, col, col, col)
		batch.Queue(query, c.URL, c.ChunkNumber, c.SourceID, c.Content, meta, pgvector.NewVector(c.Embedding), c.EmbeddingDimension, c.EmbeddingModel, c.LLMChatModel)
		n++
	}
	if n == 0 {
		return nil
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func countEligible(chunks []Chunk, pred func(Chunk) bool) int {
	n := 0
	for _, c := range chunks {
		if pred(c) {
			n++
		}
	}
	return n
}
