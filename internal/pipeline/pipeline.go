// Package pipeline implements the middleware chain wrapped around every
// adapter call: cache lookup, rate-limited admission, retry with backoff,
// and cache store on success. Failures are classified into the domain error
// taxonomy and never cached.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/ratelimit"
)

// DefaultPriority is the mid-priority assigned when callers do not specify
// one. Lower values are admitted first.
const DefaultPriority = 5

// Request describes one pipeline execution.
type Request struct {
	Provider  string
	Method    string
	Params    map[string]any
	Cacheable bool
	Priority  int
	TTL       time.Duration // 0 selects the provider's default TTL
}

// providerUsage tracks per-provider execution counters.
type providerUsage struct {
	requests  atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64
}

// Usage is a snapshot of one provider's counters.
type Usage struct {
	Requests  int64 `json:"requests"`
	Errors    int64 `json:"errors"`
	CacheHits int64 `json:"cache_hits"`
}

// Pipeline is the shared base service used by all adapters.
type Pipeline struct {
	cache    domain.Cache
	limiters *ratelimit.Registry

	retryMu sync.RWMutex
	retry   RetryConfig

	usageMu sync.Mutex
	usage   map[string]*providerUsage
}

// New creates a pipeline (DI constructor).
func New(responseCache domain.Cache, limiters *ratelimit.Registry, retry RetryConfig) *Pipeline {
	return &Pipeline{
		cache:    responseCache,
		limiters: limiters,
		retry:    retry.withDefaults(),
		usage:    make(map[string]*providerUsage),
	}
}

// Execute runs op through the full middleware chain. Cache hits short-circuit
// with no side effects and no rate-limit consumption.
func Execute[T any](ctx context.Context, p *Pipeline, req Request, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := observability.FromContext(ctx)
	counters := p.countersFor(req.Provider)
	counters.requests.Add(1)

	var key string
	if req.Cacheable && p.cache != nil {
		key = cache.Key(req.Provider, req.Method, req.Params)
		if hit, ok := p.cache.Get(ctx, key); ok {
			if result, decoded := decodeCached[T](hit); decoded {
				counters.cacheHits.Add(1)
				logger.Debug("cache hit",
					observability.String("method", req.Method),
				)
				return result, nil
			}
		}
	}

	limiter := p.limiters.For(req.Provider)
	if err := limiter.Acquire(ctx, req.Priority); err != nil {
		counters.errors.Add(1)
		return zero, err
	}
	defer limiter.Release()

	p.retryMu.RLock()
	retryCfg := p.retry
	p.retryMu.RUnlock()

	result, err := doWithRetry(ctx, req.Provider, retryCfg, op)
	if err != nil {
		counters.errors.Add(1)
		return zero, domain.Classify(req.Provider, err)
	}

	if req.Cacheable && p.cache != nil {
		if payload, merr := json.Marshal(result); merr != nil {
			logger.Warn("failed to encode result for cache", observability.Error(merr))
		} else if setErr := p.cache.Set(ctx, key, json.RawMessage(payload), req.TTL); setErr != nil {
			logger.Warn("failed to store in cache", observability.Error(setErr))
		}
	}

	return result, nil
}

// decodeCached rebuilds a result from a cached entry. Entries are stored as
// raw JSON and decoded into a fresh value on every hit, so callers never
// alias the cache: annotating a returned result cannot corrupt the entry or
// race with other hits on the same key.
func decodeCached[T any](hit any) (T, bool) {
	var zero T

	raw, ok := hit.(json.RawMessage)
	if !ok {
		return zero, false
	}

	ptr := new(T)
	if err := json.Unmarshal(raw, ptr); err != nil {
		return zero, false
	}
	return *ptr, true
}

func (p *Pipeline) countersFor(provider string) *providerUsage {
	p.usageMu.Lock()
	defer p.usageMu.Unlock()

	counters, exists := p.usage[provider]
	if !exists {
		counters = &providerUsage{}
		p.usage[provider] = counters
	}
	return counters
}

// Usage snapshots execution counters for every provider seen so far.
func (p *Pipeline) Usage() map[string]Usage {
	p.usageMu.Lock()
	defer p.usageMu.Unlock()

	out := make(map[string]Usage, len(p.usage))
	for provider, counters := range p.usage {
		out[provider] = Usage{
			Requests:  counters.requests.Load(),
			Errors:    counters.errors.Load(),
			CacheHits: counters.cacheHits.Load(),
		}
	}
	return out
}

// LimiterStats exposes the per-provider rate limiter snapshots.
func (p *Pipeline) LimiterStats() map[string]ratelimit.Stats {
	return p.limiters.Stats()
}

// CacheStats exposes the shared cache counters.
func (p *Pipeline) CacheStats(ctx context.Context) domain.CacheStats {
	if p.cache == nil {
		return domain.CacheStats{}
	}
	return p.cache.Stats(ctx)
}

// ApplyRetryConfig swaps the retry policy on a live pipeline.
func (p *Pipeline) ApplyRetryConfig(cfg RetryConfig) {
	p.retryMu.Lock()
	p.retry = cfg.withDefaults()
	p.retryMu.Unlock()
}

// ApplyCacheOptions reconfigures the shared cache when the backend supports
// it. Returns false for backends without runtime reconfiguration.
func (p *Pipeline) ApplyCacheOptions(opts cache.Options) bool {
	configurable, ok := p.cache.(interface{ Configure(cache.Options) })
	if !ok {
		return false
	}
	configurable.Configure(opts)
	return true
}
