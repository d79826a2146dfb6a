package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/davidbz/hearth/internal/domain"
)

const defaultLRUSize = 1024

// LRU is a size-bounded cache backed by hashicorp/golang-lru. Eviction is
// access-ordered, which strengthens the insertion-order contract the memory
// cache implements. TTLs are tracked per entry and re-checked on every read.
type LRU struct {
	entries *lru.Cache[string, entry]

	mu   sync.RWMutex
	opts Options

	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
}

// NewLRU creates a size-bounded cache.
func NewLRU(opts Options) (*LRU, error) {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultLRUSize
	}

	c := &LRU{opts: opts}
	entries, err := lru.NewWithEvict[string, entry](opts.MaxSize, func(string, entry) {
		c.evicted.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// Get returns an unexpired entry; expired entries are removed eagerly.
func (c *LRU) Get(_ context.Context, key string) (any, bool) {
	e, exists := c.entries.Get(key)
	if !exists {
		c.misses.Add(1)
		return nil, false
	}
	if e.expired(time.Now()) {
		c.entries.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.data, true
}

// Set stores a value, evicting the least-recently-used entry at capacity.
// No-op when caching is disabled.
func (c *LRU) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.RLock()
	enabled, fallback := c.opts.Enabled, c.opts.TTL
	c.mu.RUnlock()

	if !enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = fallback
	}
	c.entries.Add(key, entry{data: value, storedAt: time.Now(), ttl: ttl})
	return nil
}

// Configure replaces the cache options on a live instance. Shrinking MaxSize
// evicts least-recently-used entries immediately.
func (c *LRU) Configure(opts Options) {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultLRUSize
	}

	c.mu.Lock()
	resize := opts.MaxSize != c.opts.MaxSize
	c.opts = opts
	c.mu.Unlock()

	if resize {
		c.entries.Resize(opts.MaxSize)
	}
}

// Has reports whether an unexpired entry exists without touching recency.
func (c *LRU) Has(_ context.Context, key string) bool {
	e, exists := c.entries.Peek(key)
	return exists && !e.expired(time.Now())
}

// Stats returns cache effectiveness counters.
func (c *LRU) Stats(_ context.Context) domain.CacheStats {
	return domain.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Entries:   c.entries.Len(),
		Evictions: c.evicted.Load(),
	}
}

// Close drops all entries.
func (c *LRU) Close() error {
	c.entries.Purge()
	return nil
}
