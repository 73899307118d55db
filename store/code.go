package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// InsertCodeExamples mirrors InsertChunks for archon_code_examples: the
// same slice/retry/per-row-fallback contract, with the same
// skip-unsupported-dimension rule. The embedding passed on each
// CodeExample is expected to already be computed over
// content + "\n\nSummary: " + summary, not code alone.
func (s *Store) InsertCodeExamples(ctx context.Context, examples []CodeExample, batchSize int) (int, error) {
	if batchSize < 1 {
		batchSize = 50
	}

	stored := 0
	for start := 0; start < len(examples); start += batchSize {
		end := start + batchSize
		if end > len(examples) {
			end = len(examples)
		}
		slice := examples[start:end]

		n, err := s.insertCodeSliceWithRetry(ctx, slice)
		stored += n
		if err != nil {
			return stored, err
		}
	}
	return stored, nil
}

func (s *Store) insertCodeSliceWithRetry(ctx context.Context, slice []CodeExample) (int, error) {
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
		if err := s.insertCodeSlice(ctx, slice); err == nil {
			n := 0
			for _, c := range slice {
				if embeddingColumn(c.EmbeddingDimension) != "" {
					n++
				}
			}
			return n, nil
		} else {
			lastErr = err
		}
	}

	stored := 0
	for _, c := range slice {
		if embeddingColumn(c.EmbeddingDimension) == "" {
			continue
		}
		if err := s.insertCodeSlice(ctx, []CodeExample{c}); err == nil {
			stored++
		}
	}
	if stored == 0 && lastErr != nil {
		return 0, lastErr
	}
	return stored, nil
}

func (s *Store) insertCodeSlice(ctx context.Context, slice []CodeExample) error {
	batch := &pgx.Batch{}
	n := 0
	for _, c := range slice {
		col := embeddingColumn(c.EmbeddingDimension)
		if col == "" {
			continue
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("store: marshaling code example metadata: %w", err)
		}
		query := fmt.Sprintf(`
			INSERT INTO archon_code_examples (url, chunk_number, source_id, content, summary, metadata, %s, embedding_dimension, embedding_model, llm_chat_model)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (url, chunk_number) DO UPDATE SET
				content = excluded.content,
				summary = excluded.summary,
				metadata = excluded.metadata,
				%s = excluded.%s,
				embedding_dimension = excluded.embedding_dimension,
				embedding_model = excluded.embedding_model,
				llm_chat_model = excluded.llm_chat_model
		`, col, col, col)
		batch.Queue(query, c.URL, c.ChunkNumber, c.SourceID, c.Content, c.Summary, meta, pgvector.NewVector(c.Embedding), c.EmbeddingDimension, c.EmbeddingModel, c.LLMChatModel)
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
