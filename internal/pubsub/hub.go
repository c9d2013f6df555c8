package pubsub

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

type subscriber struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// send drops the message when the subscriber is closed or its buffer is full.
func (s *subscriber) send(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// hub fans messages out to the local subscribers of each channel. Every
// backend delivers through one; they differ only in how messages reach it.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

// add registers a subscriber that is removed and closed when ctx ends.
func (h *hub) add(ctx context.Context, channel string) <-chan Message {
	s := &subscriber{ch: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*subscriber]struct{})
	}
	h.subs[channel][s] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[channel], s)
		h.mu.Unlock()
		s.close()
	}()

	return s.ch
}

func (h *hub) deliver(msg Message) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[msg.Channel]))
	for s := range h.subs[msg.Channel] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.send(msg) {
			log.Warn().Str("channel", msg.Channel).Msg("Pub/sub subscriber unavailable, dropping message")
		}
	}
}

// closeAll closes every subscription.
func (h *hub) closeAll() {
	h.mu.Lock()
	var all []*subscriber
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}
