package pubsub

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
)

// NewPubSub returns the backend named by cfg.Backend: "local" (the
// default) for one instance, "postgres" for LISTEN/NOTIFY on pool, or
// "redis" for cfg.RedisURL.
func NewPubSub(cfg *config.ScalingConfig, pool *pgxpool.Pool) (PubSub, error) {
	var (
		ps  PubSub
		err error
	)

	switch cfg.Backend {
	case "local", "":
		ps = NewLocalPubSub()
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("database pool is required for postgres pub/sub backend")
		}
		pg := NewPostgresPubSub(pool)
		if err = pg.Start(); err != nil {
			return nil, fmt.Errorf("failed to start PostgreSQL pub/sub: %w", err)
		}
		ps = pg
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis pub/sub backend")
		}
		if ps, err = NewRedisPubSub(cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis for pub/sub: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local, postgres, redis)", cfg.Backend)
	}

	log.Info().Str("backend", cfg.Backend).Msg("Pub/sub initialized")
	return ps, nil
}
