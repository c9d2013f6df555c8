// Package pubsub carries cache invalidation notices between search
// instances that share one database.
package pubsub

import (
	"context"
)

// Message is one notice received on a channel.
type Message struct {
	Channel string `json:"channel"`
	Payload []byte `json:"payload"`
}

// PubSub is implemented by the local, postgres and redis backends.
type PubSub interface {
	// Publish sends payload to every subscriber of channel, on every
	// instance.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel closed when ctx ends or Close is called.
	// Messages are dropped for a subscriber whose buffer is full.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	Close() error
}

// VocabularyChannel announces that the property vocabulary changed and
// cached property ids must be reloaded.
const VocabularyChannel = "advsearch:vocabulary"

// Channels lists every channel the service publishes on. Backends that
// must declare interest up front (LISTEN) use it.
func Channels() []string {
	return []string{VocabularyChannel}
}
