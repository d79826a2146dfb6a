package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davidbz/hearth/internal/domain"
)

// Options configures an in-process cache.
type Options struct {
	TTL     time.Duration // default entry lifetime
	MaxSize int           // entry cap; oldest insertion evicted at capacity
	Enabled bool          // Set becomes a no-op when false
}

const defaultTTL = 5 * time.Minute

type entry struct {
	data     any
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Memory is a map-backed cache with a background sweep that removes
// logically-expired entries. The sweep is best-effort; Get re-checks expiry
// on every read.
type Memory struct {
	mu      sync.RWMutex
	store   map[string]entry
	opts    Options
	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
	sweeper *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemory creates a memory cache and starts its sweep loop at half the
// configured TTL.
func NewMemory(opts Options) *Memory {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	c := &Memory{
		store: make(map[string]entry),
		opts:  opts,
		done:  make(chan struct{}),
	}
	c.sweeper = time.NewTicker(opts.TTL / 2)
	go c.sweepLoop()
	return c
}

func (c *Memory) sweepLoop() {
	for {
		select {
		case <-c.sweeper.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Memory) sweep() {
	now := time.Now()
	c.mu.Lock()
	for key, e := range c.store {
		if e.expired(now) {
			delete(c.store, key)
			c.evicted.Add(1)
		}
	}
	c.mu.Unlock()
}

// Get returns an unexpired entry. Expired entries count as misses even when
// the sweep has not removed them yet.
func (c *Memory) Get(_ context.Context, key string) (any, bool) {
	c.mu.RLock()
	e, exists := c.store[key]
	c.mu.RUnlock()

	if !exists || e.expired(time.Now()) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.data, true
}

// Set stores a value. A non-positive ttl falls back to the configured
// default. No-op when caching is disabled.
func (c *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opts.Enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = c.opts.TTL
	}

	if c.opts.MaxSize > 0 && len(c.store) >= c.opts.MaxSize {
		if _, exists := c.store[key]; !exists {
			c.evictOldestLocked()
		}
	}

	c.store[key] = entry{data: value, storedAt: time.Now(), ttl: ttl}
	return nil
}

// evictOldestLocked removes the entry with the oldest insertion time.
func (c *Memory) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, e := range c.store {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.store, oldestKey)
		c.evicted.Add(1)
	}
}

// Configure replaces the cache options on a live instance. Entries stored
// before the change keep the TTL they were written with; the sweep interval
// follows the new default.
func (c *Memory) Configure(opts Options) {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	c.sweeper.Reset(opts.TTL / 2)
}

// Has reports whether an unexpired entry exists without counting a hit.
func (c *Memory) Has(_ context.Context, key string) bool {
	c.mu.RLock()
	e, exists := c.store[key]
	c.mu.RUnlock()
	return exists && !e.expired(time.Now())
}

// Stats returns cache effectiveness counters.
func (c *Memory) Stats(_ context.Context) domain.CacheStats {
	c.mu.RLock()
	entries := len(c.store)
	c.mu.RUnlock()

	return domain.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Entries:   entries,
		Evictions: c.evicted.Load(),
	}
}

// Close stops the sweep loop and drops all entries.
func (c *Memory) Close() error {
	c.once.Do(func() {
		c.sweeper.Stop()
		close(c.done)
	})
	c.mu.Lock()
	c.store = make(map[string]entry)
	c.mu.Unlock()
	return nil
}
