package vocabulary

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/observability"
	"github.com/fluxbase-eu/advancedsearch/internal/pubsub"
	"github.com/rs/zerolog/log"
)

// PropertyCache is a read-through cache of the property table with TTL
// expiration and manual invalidation. When a PubSub is configured,
// invalidation is broadcast to all instances.
type PropertyCache struct {
	mu          sync.RWMutex
	byTerm      map[string]int
	byID        map[int]Property
	all         []Property
	ttl         time.Duration
	lastRefresh time.Time
	loader      Loader
	stale       bool // Force refresh on next access
	generation  uint64
	metrics     *observability.Metrics

	// refreshMu serializes loads so that concurrent misses hit the
	// database once.
	refreshMu sync.Mutex

	ps         pubsub.PubSub
	cancelFunc context.CancelFunc
}

// NewPropertyCache creates a cache over loader. A ttl of zero disables
// expiration; the cache then refreshes only on invalidation.
func NewPropertyCache(loader Loader, ttl time.Duration) *PropertyCache {
	return &PropertyCache{
		byTerm: make(map[string]int),
		byID:   make(map[int]Property),
		ttl:    ttl,
		loader: loader,
		stale:  true,
	}
}

// SetMetrics sets the metrics instance used to record refreshes.
func (c *PropertyCache) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

func (c *PropertyCache) needsRefresh() bool {
	return c.stale || (c.ttl > 0 && time.Since(c.lastRefresh) > c.ttl)
}

// ensureFresh refreshes the cache when it is stale or expired.
func (c *PropertyCache) ensureFresh(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.needsRefresh()
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	c.mu.RLock()
	fresh = !c.needsRefresh()
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.load(ctx)
}

// PropertyIDs resolves terms and numeric ids to the sorted set of known
// property ids. Unknown references are skipped, so a list of unknown
// references resolves to an empty set rather than an error.
func (c *PropertyCache) PropertyIDs(ctx context.Context, refs []string) ([]int, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[int]bool, len(refs))
	ids := make([]int, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		id, ok := c.lookup(ref)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// lookup must be called with the read lock held.
func (c *PropertyCache) lookup(ref string) (int, bool) {
	if n, err := strconv.Atoi(ref); err == nil {
		_, ok := c.byID[n]
		return n, ok
	}
	id, ok := c.byTerm[normalizeTerm(ref)]
	return id, ok
}

// Properties returns all cached properties ordered by id.
func (c *PropertyCache) Properties(ctx context.Context) ([]Property, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Property, len(c.all))
	copy(result, c.all)
	return result, nil
}

// Size returns the number of cached properties.
func (c *PropertyCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.all)
}

// Invalidate marks the cache as stale, forcing a refresh on next access.
// Only the local cache is affected; use InvalidateAll to reach every
// instance.
func (c *PropertyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	c.generation++
	log.Debug().Msg("Property cache invalidated (local)")
}

// InvalidateAll invalidates the local cache and broadcasts the
// invalidation to the other instances.
func (c *PropertyCache) InvalidateAll(ctx context.Context) error {
	c.Invalidate()

	c.mu.RLock()
	ps := c.ps
	c.mu.RUnlock()
	if ps == nil {
		return nil
	}

	if err := ps.Publish(ctx, pubsub.VocabularyChannel, []byte("invalidate")); err != nil {
		log.Error().Err(err).Msg("Failed to broadcast property cache invalidation")
		return err
	}
	log.Debug().Msg("Property cache invalidation broadcast sent")
	return nil
}

// SetPubSub configures cross-instance invalidation and starts listening
// for invalidations sent by other instances.
func (c *PropertyCache) SetPubSub(ps pubsub.PubSub) {
	c.mu.Lock()
	c.ps = ps
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	var ctx context.Context
	if ps != nil {
		ctx, c.cancelFunc = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	if ps != nil {
		go c.listen(ctx, ps)
	}
}

func (c *PropertyCache) listen(ctx context.Context, ps pubsub.PubSub) {
	msgCh, err := ps.Subscribe(ctx, pubsub.VocabularyChannel)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to property cache invalidation channel")
		return
	}

	log.Info().Msg("Property cache listening for cross-instance invalidation messages")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			log.Debug().Str("payload", string(msg.Payload)).Msg("Received property cache invalidation")
			c.Invalidate()
		}
	}
}

// Close stops the invalidation listener if running
func (c *PropertyCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
}

// Refresh reloads the cache immediately.
func (c *PropertyCache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.load(ctx)
}

// load must be called with refreshMu held.
func (c *PropertyCache) load(ctx context.Context) error {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	props, err := c.loader.LoadProperties(ctx)
	if c.metrics != nil {
		c.metrics.RecordPropertyRefresh(len(props), err)
	}
	if err != nil {
		return err
	}

	byTerm := make(map[string]int, len(props))
	byID := make(map[int]Property, len(props))
	for _, p := range props {
		byTerm[normalizeTerm(p.Term())] = p.ID
		byID[p.ID] = p
	}
	sort.Slice(props, func(i, j int) bool { return props[i].ID < props[j].ID })

	c.mu.Lock()
	c.byTerm = byTerm
	c.byID = byID
	c.all = props
	c.lastRefresh = time.Now()
	// An invalidation received during the load may predate the rows read.
	c.stale = c.generation != gen
	c.mu.Unlock()

	log.Info().Int("properties", len(props)).Msg("Property cache refreshed")
	return nil
}
