package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertSource creates or updates a source row. The Orchestrator must
// call this before writing any chunk that references src.SourceID — the
// foreign key on archon_crawled_pages/archon_code_examples otherwise
// fails the write.
func (s *Store) UpsertSource(ctx context.Context, src Source) error {
	meta, err := json.Marshal(src.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshaling source metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO archon_sources (source_id, source_url, source_display_name, title, summary, total_word_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id) DO UPDATE SET
			source_url = excluded.source_url,
			source_display_name = excluded.source_display_name,
			title = excluded.title,
			summary = excluded.summary,
			total_word_count = excluded.total_word_count,
			metadata = excluded.metadata,
			updated_at = now()
	`, src.SourceID, src.SourceURL, src.SourceDisplayName, src.Title, src.Summary, src.TotalWordCount, meta)
	return err
}

// UpsertSourceMinimal is the fallback path when UpsertSource fails: it
// writes only the fields required to satisfy the foreign key, so the
// operation can still proceed rather than abort outright.
func (s *Store) UpsertSourceMinimal(ctx context.Context, sourceID, sourceURL, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archon_sources (source_id, source_url, source_display_name, metadata)
		VALUES ($1, $2, $3, '{}'::jsonb)
		ON CONFLICT (source_id) DO UPDATE SET updated_at = now()
	`, sourceID, sourceURL, displayName)
	return err
}

// GetSource fetches a source by id. A missing source is not an error:
// it returns (nil, nil), leaving the caller to decide how to report
// "not found" (e.g. as a 404 at the HTTP boundary).
func (s *Store) GetSource(ctx context.Context, sourceID string) (*Source, error) {
	var src Source
	var meta []byte
	err := s.pool.QueryRow(ctx, `
		SELECT source_id, source_url, source_display_name, title, summary, total_word_count, metadata
		FROM archon_sources WHERE source_id = $1
	`, sourceID).Scan(&src.SourceID, &src.SourceURL, &src.SourceDisplayName, &src.Title, &src.Summary, &src.TotalWordCount, &meta)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &src.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshaling source metadata: %w", err)
		}
	}
	return &src, nil
}

// DeleteSource removes a source and cascades to its chunks and code
// examples.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM archon_sources WHERE source_id = $1`, sourceID)
	return err
}
