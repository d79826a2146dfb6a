package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// InMemoryPricingRegistry resolves per-model token pricing. Lookups fall
// back to the longest registered prefix, so dated snapshots such as
// "gpt-4-turbo-2024-04-09" pick up "gpt-4-turbo" pricing without every
// snapshot being registered individually.
type InMemoryPricingRegistry struct {
	mu     sync.RWMutex
	models map[string]PricingConfig
}

// NewInMemoryPricingRegistry creates an empty pricing registry.
func NewInMemoryPricingRegistry() *InMemoryPricingRegistry {
	return &InMemoryPricingRegistry{models: make(map[string]PricingConfig)}
}

// GetPricing resolves pricing for a model: exact match first, then the
// longest registered prefix.
func (r *InMemoryPricingRegistry) GetPricing(_ context.Context, model string) (PricingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if config, exact := r.models[model]; exact {
		return config, nil
	}

	best := ""
	for name := range r.models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return PricingConfig{}, fmt.Errorf("pricing not found for model: %s", model)
	}
	return r.models[best], nil
}

// RegisterPricing adds or replaces pricing for a model.
func (r *InMemoryPricingRegistry) RegisterPricing(_ context.Context, model string, config PricingConfig) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	if config.InputCostPer1K < 0 || config.OutputCostPer1K < 0 {
		return fmt.Errorf("pricing for model %s must not be negative", model)
	}

	r.mu.Lock()
	r.models[model] = config
	r.mu.Unlock()
	return nil
}
