package ratelimit

import "sync"

// Registry is an arena of limiters keyed by provider identity. Limiters are
// created lazily on first use so operations on different providers never
// contend with each other.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	cfg      Config
}

// NewRegistry creates a limiter registry with shared default settings.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		cfg:      cfg.withDefaults(),
	}
}

// For returns the limiter for a provider, creating it on first use.
func (r *Registry) For(provider string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.limiters[provider]
	if !exists {
		limiter = NewLimiter(provider, r.cfg)
		r.limiters[provider] = limiter
	}
	return limiter
}

// Configure applies new settings to every existing limiter and to limiters
// created afterwards. Safe to call on a live registry.
func (r *Registry) Configure(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cfg = cfg.withDefaults()
	for _, limiter := range r.limiters {
		limiter.Configure(r.cfg)
	}
}

// Stats snapshots every known limiter keyed by provider.
func (r *Registry) Stats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]Stats, len(r.limiters))
	for provider, limiter := range r.limiters {
		stats[provider] = limiter.Stats()
	}
	return stats
}

// Close disposes every limiter in the arena.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for provider, limiter := range r.limiters {
		limiter.Close()
		delete(r.limiters, provider)
	}
	return nil
}
