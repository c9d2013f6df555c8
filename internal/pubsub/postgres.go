package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// maxNotifyPayload is the PostgreSQL NOTIFY payload limit.
const maxNotifyPayload = 8000

// PostgresPubSub implements PubSub with LISTEN/NOTIFY on the search
// database. It listens on Channels() only. Notices are not persisted: an
// instance that is reconnecting misses them and relies on the cache TTL.
type PostgresPubSub struct {
	pool *pgxpool.Pool
	hub  *hub

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewPostgresPubSub(pool *pgxpool.Pool) *PostgresPubSub {
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresPubSub{
		pool:   pool,
		hub:    newHub(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the listener. Calling it again is a no-op.
func (p *PostgresPubSub) Start() error {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.listen()
		log.Info().Strs("channels", Channels()).Msg("PostgreSQL pub/sub started")
	})
	return nil
}

// listen holds one pooled connection in LISTEN mode, reconnecting after a
// second when it fails.
func (p *PostgresPubSub) listen() {
	defer p.wg.Done()

	for p.ctx.Err() == nil {
		if err := p.session(); err != nil && p.ctx.Err() == nil {
			log.Error().Err(err).Msg("Pub/sub LISTEN session ended")
		}

		select {
		case <-p.ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

func (p *PostgresPubSub) session() error {
	conn, err := p.pool.Acquire(p.ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	for _, ch := range Channels() {
		ident := pgx.Identifier{sanitizeChannelName(ch)}.Sanitize()
		if _, err := conn.Exec(p.ctx, "LISTEN "+ident); err != nil {
			return fmt.Errorf("listen on %s: %w", ch, err)
		}
	}

	for {
		n, err := conn.Conn().WaitForNotification(p.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		p.hub.deliver(Message{
			Channel: unsanitizeChannelName(n.Channel),
			Payload: []byte(n.Payload),
		})
	}
}

func (p *PostgresPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("payload too large for PostgreSQL NOTIFY: %d bytes (max %d)", len(payload), maxNotifyPayload)
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", sanitizeChannelName(channel), string(payload)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *PostgresPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	if err := p.Start(); err != nil {
		return nil, err
	}
	return p.hub.add(ctx, channel), nil
}

func (p *PostgresPubSub) Close() error {
	p.cancel()
	p.wg.Wait()
	p.hub.closeAll()
	log.Info().Msg("PostgreSQL pub/sub closed")
	return nil
}

// sanitizeChannelName maps a channel name to a PostgreSQL identifier.
// Colons become double underscores.
func sanitizeChannelName(channel string) string {
	return strings.ReplaceAll(channel, ":", "__")
}

func unsanitizeChannelName(pgChannel string) string {
	return strings.ReplaceAll(pgChannel, "__", ":")
}
