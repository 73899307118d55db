package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// GetSetting implements settings.Store against archon_settings, so the
// credential/tunable cache (C1) can persist overrides across restarts
// instead of living only in process memory or the environment.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM archon_settings WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutSetting upserts a setting value.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archon_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()
	`, key, value)
	return err
}
