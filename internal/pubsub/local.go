package pubsub

import (
	"context"
)

// LocalPubSub delivers messages inside one process. It is the backend for
// single instance deployments.
type LocalPubSub struct {
	hub *hub
}

func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{hub: newHub()}
}

func (l *LocalPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	l.hub.deliver(Message{Channel: channel, Payload: payload})
	return nil
}

func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	return l.hub.add(ctx, channel), nil
}

func (l *LocalPubSub) Close() error {
	l.hub.closeAll()
	return nil
}
