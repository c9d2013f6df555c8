package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. Each instance has its own
// budget.
type MemoryStore struct {
	data       map[string]*Counter
	mu         sync.Mutex
	gcInterval time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

// NewMemoryStore creates a new in-memory rate limit store.
// gcInterval specifies how often to clean up expired entries.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}

	store := &MemoryStore{
		data:       make(map[string]*Counter),
		gcInterval: gcInterval,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}

	go store.gc()

	return store
}

// Increment atomically increments the counter for a key.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.data[key]
	if !ok || !now.Before(c.ExpiresAt) {
		c = &Counter{ExpiresAt: now.Add(window)}
		s.data[key] = c
	}
	c.Count++
	return *c, nil
}

// Reset resets the counter for a key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close stops the garbage collection goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Cleanup removes all expired entries.
func (s *MemoryStore) Cleanup(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, c := range s.data {
		if !now.Before(c.ExpiresAt) {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) gc() {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background())
		}
	}
}

func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
