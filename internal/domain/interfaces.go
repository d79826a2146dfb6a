package domain

import (
	"context"
	"time"
)

// Capability identifies an optional provider feature. Every provider
// implements text and chat generation; everything else is capability-gated
// and must be checked with Supports before dispatch.
type Capability string

const (
	CapabilityEmbedding Capability = "embedding"
	CapabilityImage     Capability = "image"
	CapabilityStreaming Capability = "streaming"
)

// ProviderDefaults carries per-provider defaults applied during option
// normalization and cache storage.
type ProviderDefaults struct {
	Model     string
	MaxTokens int
	CacheTTL  time.Duration
}

// Provider represents any AI inference backend. The mandatory surface is
// text and chat generation; optional capabilities are modeled as the
// Embedder, ImageGenerator and Streamer interfaces, discovered via Supports
// plus a type assertion.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// GenerateText sends a single-prompt completion request.
	GenerateText(ctx context.Context, prompt string, opts *GenerateOptions) (*GenerateResult, error)

	// GenerateChat sends a multi-message completion request.
	GenerateChat(ctx context.Context, messages []Message, opts *GenerateOptions) (*GenerateResult, error)

	// Supports reports whether the provider implements an optional capability.
	Supports(capability Capability) bool

	// Defaults returns the provider's normalization defaults.
	Defaults() ProviderDefaults
}

// Embedder is implemented by providers that can produce vector embeddings.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error)
}

// ImageGenerator is implemented by providers that can generate images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts *ImageOptions) (*ImageResult, error)
}

// Streamer is implemented by providers that support incremental output.
// The returned channel is closed by the provider after the final chunk.
type Streamer interface {
	StreamText(ctx context.Context, prompt string, opts *GenerateOptions) (<-chan StreamChunk, error)
	StreamChat(ctx context.Context, messages []Message, opts *GenerateOptions) (<-chan StreamChunk, error)
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry. The first registered
	// provider becomes the default unless SetDefault is called.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name; an empty name selects the default.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available provider names.
	List(ctx context.Context) ([]string, error)

	// Default returns the default provider name.
	Default(ctx context.Context) (string, error)
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Entries   int   `json:"entries"`
	Evictions int64 `json:"evictions"`
}

// Cache is the response cache contract shared by all implementations.
// Entries are logically expired once their TTL elapses regardless of
// physical eviction; Get must re-check expiry on every read.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Has(ctx context.Context, key string) bool
	Stats(ctx context.Context) CacheStats
	Close() error
}
