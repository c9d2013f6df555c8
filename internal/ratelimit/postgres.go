package ratelimit

import (
	"context"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/database"
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps counters in the rate_limits table of the search
// database. It uses UPSERT with ON CONFLICT to increment atomically.
type PostgresStore struct {
	db database.Executor
}

// NewPostgresStore creates a new PostgreSQL-backed rate limit store.
// The rate_limits table is created by the schema migrations.
func NewPostgresStore(db database.Executor) *PostgresStore {
	return &PostgresStore{db: db}
}

// Increment atomically increments the counter for a key.
func (s *PostgresStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	var c Counter
	err := s.db.QueryRow(ctx, `
		INSERT INTO rate_limits (key, count, expires_at)
		VALUES ($1, 1, NOW() + $2 * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN rate_limits.expires_at <= NOW() THEN 1
				ELSE rate_limits.count + 1
			END,
			expires_at = CASE
				WHEN rate_limits.expires_at <= NOW() THEN EXCLUDED.expires_at
				ELSE rate_limits.expires_at
			END
		RETURNING count, expires_at
	`, key, window.Milliseconds()).Scan(&c.Count, &c.ExpiresAt)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to increment rate limit counter")
		return Counter{}, err
	}
	return c, nil
}

// Reset resets the counter for a key.
func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE key = $1`, key)
	return err
}

// Close is a no-op; the store does not own the connection pool.
func (s *PostgresStore) Close() error {
	return nil
}

// Cleanup removes expired entries. It is scheduled by the maintenance cron.
func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
