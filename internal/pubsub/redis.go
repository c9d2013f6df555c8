package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisPubSub implements PubSub on any Redis-compatible server. One Redis
// subscription per process carries every channel; the hub fans it out.
type RedisPubSub struct {
	client *redis.Client
	sub    *redis.PubSub
	hub    *hub

	mu       sync.Mutex
	channels map[string]bool

	wg sync.WaitGroup
}

// NewRedisPubSub connects to url (redis://[password@]host:port[/db]) and
// starts the receive loop.
func NewRedisPubSub(url string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis for pub/sub")

	r := &RedisPubSub{
		client:   client,
		sub:      client.Subscribe(context.Background()),
		hub:      newHub(),
		channels: make(map[string]bool),
	}

	r.wg.Add(1)
	go r.receive()
	return r, nil
}

// receive runs until the Redis subscription is closed.
func (r *RedisPubSub) receive() {
	defer r.wg.Done()
	for msg := range r.sub.Channel() {
		r.hub.deliver(Message{Channel: msg.Channel, Payload: []byte(msg.Payload)})
	}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe adds channel to the process subscription on first use.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.channels[channel] {
		if err := r.sub.Subscribe(ctx, channel); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		r.channels[channel] = true
	}
	return r.hub.add(ctx, channel), nil
}

func (r *RedisPubSub) Close() error {
	err := r.sub.Close()
	r.wg.Wait()
	r.hub.closeAll()

	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	log.Info().Msg("Redis pub/sub closed")
	return err
}
