// Package cache memoizes resolution results with a TTL, a size cap and
// single-flight deduplication of concurrent fetches for the same key.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/famomatic/ytmirror/internal/metrics"
)

const (
	DefaultCap      = 100
	StreamTTL       = 30 * time.Minute
	MetadataTTL     = 60 * time.Minute
	DefaultPrefetch = 5
)

// Fetcher produces the value for a key on a miss.
type Fetcher[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value V
	at    time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Pending   int    `json:"pending"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Shared    uint64 `json:"shared"`
	Evictions uint64 `json:"evictions"`
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithCap overrides DefaultCap.
func WithCap[V any](n int) Option[V] {
	return func(c *Cache[V]) {
		if n > 1 {
			c.cap = n
		}
	}
}

// WithClone copies values on read and write so callers never share them.
func WithClone[V any](fn func(V) V) Option[V] {
	return func(c *Cache[V]) { c.clone = fn }
}

// WithClock overrides time.Now.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	cap   int
	clone func(V) V
	now   func() time.Time
	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]entry[V]
	pending   map[string]struct{}
	hits      uint64
	misses    uint64
	shared    uint64
	evictions uint64
}

// New returns a cache named name (used as the metrics namespace label).
func New[V any](name string, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:    name,
		ttl:     ttl,
		cap:     DefaultCap,
		now:     time.Now,
		entries: make(map[string]entry[V]),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache[V]) copy(v V) V {
	if c.clone == nil {
		return v
	}
	return c.clone(v)
}

// Get returns a fresh value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.getLocked(key)
	if ok {
		c.hits++
		metrics.RecordCacheLookup(c.name, "hit")
		return c.copy(v), true
	}
	return v, false
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and applies the size cap.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, c.copy(value))
}

func (c *Cache[V]) setLocked(key string, value V) {
	c.entries[key] = entry[V]{value: value, at: c.now()}
	if len(c.entries) <= c.cap {
		return
	}
	// Drop the oldest half by insertion time.
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return c.entries[keys[i]].at.Before(c.entries[keys[j]].at)
	})
	n := c.cap / 2
	for _, k := range keys[:n] {
		if k == key {
			continue
		}
		delete(c.entries, k)
	}
	c.evictions += uint64(n)
	metrics.RecordCacheEvictions(c.name, n)
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetOrFetch returns the cached value or runs fetch once for all concurrent
// callers of the same key. Failed fetches are not cached. The shared fetch
// is detached from any single caller's cancellation; each caller still
// returns early when its own ctx is done.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	_, inFlight := c.pending[key]
	if inFlight {
		c.shared++
		metrics.RecordCacheLookup(c.name, "shared")
	} else {
		c.misses++
		metrics.RecordCacheLookup(c.name, "miss")
		c.pending[key] = struct{}{}
	}
	c.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fetch(fetchCtx, key)

		c.mu.Lock()
		delete(c.pending, key)
		if err == nil {
			c.setLocked(key, c.copy(v))
		}
		c.mu.Unlock()
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return c.copy(res.Val.(V)), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Prefetch warms the first DefaultPrefetch keys in the background, skipping
// keys already cached or in flight. Errors are discarded.
func (c *Cache[V]) Prefetch(ctx context.Context, keys []string, fetch Fetcher[V]) {
	if len(keys) > DefaultPrefetch {
		keys = keys[:DefaultPrefetch]
	}
	for _, key := range keys {
		if key == "" || c.Has(key) || c.Pending(key) {
			continue
		}
		go func(key string) {
			_, _ = c.GetOrFetch(ctx, key, fetch)
		}(key)
	}
}

// Has reports whether a fresh entry exists without counting a lookup.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.getLocked(key)
	return ok
}

// Pending reports whether a fetch for key is in flight.
func (c *Cache[V]) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Len returns the number of stored entries, including expired ones not yet
// observed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Pending:   len(c.pending),
		Hits:      c.hits,
		Misses:    c.misses,
		Shared:    c.shared,
		Evictions: c.evictions,
	}
}
