// Package registry holds the set of available providers and tracks which one
// serves requests that do not name a provider explicitly.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
)

// Registry implements the ProviderRegistry interface.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]domain.Provider
	defaultName string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.Provider),
	}
}

// Register adds a provider to the registry. The first registered provider
// becomes the default until SetDefault overrides it.
func (r *Registry) Register(_ context.Context, provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	if r.defaultName == "" {
		r.defaultName = name
	}

	return nil
}

// Get retrieves a provider by name. An empty name selects the default.
func (r *Registry) Get(_ context.Context, providerName string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := providerName
	if name == "" {
		name = r.defaultName
	}
	if name == "" {
		return nil, errors.New("no providers registered")
	}

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}

	return provider, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// Default returns the default provider name.
func (r *Registry) Default(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		return "", errors.New("no providers registered")
	}
	return r.defaultName, nil
}

// SetDefault designates the provider that serves unaddressed requests.
func (r *Registry) SetDefault(_ context.Context, providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerName]; !exists {
		return fmt.Errorf("provider %s not found", providerName)
	}

	r.defaultName = providerName
	return nil
}
