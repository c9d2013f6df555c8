package ratelimit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/database"
)

// memoryGCInterval bounds how long expired in-memory counters linger.
const memoryGCInterval = 10 * time.Minute

// NewStore returns the counter store for cfg.Backend. Instances sharing a
// postgres or redis backend share one budget per client; the local backend
// counts per instance. db is required for "postgres".
func NewStore(cfg *config.ScalingConfig, db database.Executor) (Store, error) {
	var store Store

	switch cfg.Backend {
	case "local", "":
		store = NewMemoryStore(memoryGCInterval)
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("database is required for postgres rate limit backend")
		}
		store = NewPostgresStore(db)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit backend")
		}
		rs, err := NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: local, postgres, redis)", cfg.Backend)
	}

	_, cleanup := store.(Cleaner)
	log.Info().
		Str("backend", cfg.Backend).
		Bool("needs_cleanup", cleanup).
		Msg("Rate limit store initialized")
	return store, nil
}
