package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/hearth/internal/domain"
)

// Redis is a distributed cache variant for deployments with multiple gateway
// replicas. Values are stored as JSON and surface as json.RawMessage; the
// pipeline decodes them back into the concrete result type. Expiry is
// delegated to Redis TTLs, so no sweep loop is needed.
type Redis struct {
	client *redis.Client

	mu   sync.RWMutex
	opts Options

	hits     atomic.Int64
	misses   atomic.Int64
	keyspace string
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client *redis.Client, opts Options) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Redis{
		client:   client,
		opts:     opts,
		keyspace: "hearth:cache:",
	}
}

// Get returns the raw JSON payload of an unexpired entry.
func (c *Redis) Get(ctx context.Context, key string) (any, bool) {
	payload, err := c.client.Get(ctx, c.keyspace+key).Bytes()
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return json.RawMessage(payload), true
}

// Set stores a value as JSON with a native Redis TTL. No-op when caching is
// disabled or the value cannot be marshaled.
func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.RLock()
	enabled, fallback := c.opts.Enabled, c.opts.TTL
	c.mu.RUnlock()

	if !enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = fallback
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.keyspace+key, payload, ttl).Err()
}

// Configure replaces the cache options on a live instance. Existing entries
// keep their Redis-side TTLs; MaxSize has no effect on this backend.
func (c *Redis) Configure(opts Options) {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
}

// Has reports whether an entry exists without counting a hit.
func (c *Redis) Has(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.keyspace+key).Result()
	return err == nil && n > 0
}

// Stats returns local hit/miss counters. Entry and eviction counts live in
// the Redis server and are not tracked per replica.
func (c *Redis) Stats(_ context.Context) domain.CacheStats {
	return domain.CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Close releases the underlying client connection.
func (c *Redis) Close() error {
	return c.client.Close()
}
