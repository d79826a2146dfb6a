// Package gateway orchestrates inference requests: it resolves the target
// provider, normalizes options, gates optional capabilities, and routes every
// call through the resilience pipeline. Streaming requests bypass the cache
// and are wrapped into cancellable sessions.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/contextwindow"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/pipeline"
	"github.com/davidbz/hearth/internal/ratelimit"
	"github.com/davidbz/hearth/internal/stream"
)

// Pipeline method names, also used as cache key segments.
const (
	methodGenerateText      = "generateText"
	methodGenerateChat      = "generateChat"
	methodGenerateEmbedding = "generateEmbedding"
	methodGenerateImage     = "generateImage"
)

// summarizePromptFormat instructs the model to condense conversation history.
const summarizePromptFormat = "Summarize the following conversation in at most %d tokens. " +
	"Preserve decisions, facts and open questions:\n\n%s"

// Service is the orchestration layer entrypoint.
type Service struct {
	registry  domain.ProviderRegistry
	pipe      *pipeline.Pipeline
	limiters  *ratelimit.Registry
	costs     *domain.CostEstimator
	optimizer *contextwindow.Optimizer
}

// NewService creates the orchestrator (DI constructor). The service itself
// acts as the summarizer for context optimization, which makes summarize
// strategies recursive calls through the same provider machinery.
func NewService(
	registry domain.ProviderRegistry,
	pipe *pipeline.Pipeline,
	limiters *ratelimit.Registry,
	pricing domain.PricingRegistry,
) *Service {
	s := &Service{
		registry: registry,
		pipe:     pipe,
		limiters: limiters,
		costs:    domain.NewCostEstimator(pricing),
	}
	s.optimizer = contextwindow.NewOptimizer(s)
	return s
}

// GenerateText sends a single-prompt completion request through the pipeline.
// An empty providerName selects the default provider.
func (s *Service) GenerateText(ctx context.Context, providerName, prompt string, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.NewValidationError("prompt cannot be empty")
	}

	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	normalized := domain.Normalize(opts, provider.Defaults())
	result, err := pipeline.Execute(ctx, s.pipe, pipeline.Request{
		Provider:  provider.Name(),
		Method:    methodGenerateText,
		Params:    map[string]any{"prompt": prompt, "options": normalized},
		Cacheable: true,
		Priority:  pipeline.DefaultPriority,
		TTL:       provider.Defaults().CacheTTL,
	}, func(ctx context.Context) (*domain.GenerateResult, error) {
		return provider.GenerateText(ctx, prompt, normalized)
	})
	if err != nil {
		return nil, err
	}

	s.attachCost(ctx, result)
	return result, nil
}

// GenerateChat sends a multi-message completion request through the pipeline.
func (s *Service) GenerateChat(ctx context.Context, providerName string, messages []domain.Message, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	if len(messages) == 0 {
		return nil, domain.NewValidationError("messages cannot be empty")
	}

	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	normalized := domain.Normalize(opts, provider.Defaults())
	result, err := pipeline.Execute(ctx, s.pipe, pipeline.Request{
		Provider:  provider.Name(),
		Method:    methodGenerateChat,
		Params:    map[string]any{"messages": messages, "options": normalized},
		Cacheable: true,
		Priority:  pipeline.DefaultPriority,
		TTL:       provider.Defaults().CacheTTL,
	}, func(ctx context.Context) (*domain.GenerateResult, error) {
		return provider.GenerateChat(ctx, messages, normalized)
	})
	if err != nil {
		return nil, err
	}

	s.attachCost(ctx, result)
	return result, nil
}

// GenerateEmbedding creates a vector embedding, if the provider supports it.
func (s *Service) GenerateEmbedding(ctx context.Context, providerName, text string) (*domain.EmbeddingResult, error) {
	if text == "" {
		return nil, domain.NewValidationError("text cannot be empty")
	}

	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	embedder, ok := provider.(domain.Embedder)
	if !ok || !provider.Supports(domain.CapabilityEmbedding) {
		return nil, domain.NewFeatureNotSupportedError(provider.Name(), domain.CapabilityEmbedding)
	}

	return pipeline.Execute(ctx, s.pipe, pipeline.Request{
		Provider:  provider.Name(),
		Method:    methodGenerateEmbedding,
		Params:    map[string]any{"text": text},
		Cacheable: true,
		Priority:  pipeline.DefaultPriority,
		TTL:       provider.Defaults().CacheTTL,
	}, func(ctx context.Context) (*domain.EmbeddingResult, error) {
		return embedder.GenerateEmbedding(ctx, text)
	})
}

// GenerateImage creates an image, if the provider supports it. Image results
// are not cached: upstream URLs expire shortly after generation.
func (s *Service) GenerateImage(ctx context.Context, providerName, prompt string, opts *domain.ImageOptions) (*domain.ImageResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.NewValidationError("prompt cannot be empty")
	}

	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	generator, ok := provider.(domain.ImageGenerator)
	if !ok || !provider.Supports(domain.CapabilityImage) {
		return nil, domain.NewFeatureNotSupportedError(provider.Name(), domain.CapabilityImage)
	}

	return pipeline.Execute(ctx, s.pipe, pipeline.Request{
		Provider: provider.Name(),
		Method:   methodGenerateImage,
		Priority: pipeline.DefaultPriority,
	}, func(ctx context.Context) (*domain.ImageResult, error) {
		return generator.GenerateImage(ctx, prompt, opts)
	})
}

// OpenTextStream starts a streaming single-prompt completion and returns the
// session handle immediately.
func (s *Service) OpenTextStream(ctx context.Context, providerName, prompt string, opts *domain.GenerateOptions) (*stream.Session, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.NewValidationError("prompt cannot be empty")
	}
	return s.openStream(ctx, providerName, opts, func(ctx context.Context, streamer domain.Streamer, normalized *domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
		return streamer.StreamText(ctx, prompt, normalized)
	})
}

// OpenChatStream starts a streaming multi-message completion.
func (s *Service) OpenChatStream(ctx context.Context, providerName string, messages []domain.Message, opts *domain.GenerateOptions) (*stream.Session, error) {
	if len(messages) == 0 {
		return nil, domain.NewValidationError("messages cannot be empty")
	}
	return s.openStream(ctx, providerName, opts, func(ctx context.Context, streamer domain.Streamer, normalized *domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
		return streamer.StreamChat(ctx, messages, normalized)
	})
}

// openStream resolves the provider, gates the streaming capability and wires
// rate limiting around the provider channel. Streaming bypasses the cache
// entirely but still occupies a rate-limit slot for its whole duration.
func (s *Service) openStream(
	ctx context.Context,
	providerName string,
	opts *domain.GenerateOptions,
	open func(ctx context.Context, streamer domain.Streamer, normalized *domain.GenerateOptions) (<-chan domain.StreamChunk, error),
) (*stream.Session, error) {
	provider, err := s.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	streamer, ok := provider.(domain.Streamer)
	if !ok || !provider.Supports(domain.CapabilityStreaming) {
		return nil, domain.NewFeatureNotSupportedError(provider.Name(), domain.CapabilityStreaming)
	}

	normalized := domain.Normalize(opts, provider.Defaults())
	normalized.Stream = true
	limiter := s.limiters.For(provider.Name())

	source := func(ctx context.Context) (<-chan domain.StreamChunk, error) {
		if err := limiter.Acquire(ctx, pipeline.DefaultPriority); err != nil {
			return nil, err
		}

		upstream, err := open(ctx, streamer, normalized)
		if err != nil {
			limiter.Release()
			return nil, err
		}

		out := make(chan domain.StreamChunk)
		go func() {
			defer close(out)
			defer limiter.Release()
			for chunk := range upstream {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}

	return stream.Open(ctx, provider.Name(), source), nil
}

// Ask is a convenience wrapper: one question to the default provider.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	result, err := s.GenerateText(ctx, "", question, nil)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// SummarizeText condenses free text to roughly maxTokens using the default
// provider.
func (s *Service) SummarizeText(ctx context.Context, text string, maxTokens int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.NewValidationError("text cannot be empty")
	}
	if maxTokens <= 0 {
		return "", domain.NewValidationError("maxTokens must be positive")
	}

	result, err := s.GenerateText(ctx, "", fmt.Sprintf(summarizePromptFormat, maxTokens, text), &domain.GenerateOptions{
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Summarize condenses conversation history for the context optimizer. It
// satisfies the contextwindow.Summarizer interface.
func (s *Service) Summarize(ctx context.Context, messages []domain.Message, maxTokens int) (string, error) {
	var transcript strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&transcript, "[%s]: %s\n", msg.Role, msg.Content)
	}
	return s.SummarizeText(ctx, transcript.String(), maxTokens)
}

// OptimizeContext compresses a conversation into a token budget.
func (s *Service) OptimizeContext(ctx context.Context, messages []domain.Message, maxTokens int, cfg contextwindow.Config) (*contextwindow.Result, error) {
	return s.optimizer.Optimize(ctx, messages, maxTokens, cfg)
}

// Status is a point-in-time operational snapshot of the orchestration layer.
type Status struct {
	DefaultProvider string                     `json:"default_provider"`
	Providers       []string                   `json:"providers"`
	Cache           domain.CacheStats          `json:"cache"`
	Limiters        map[string]ratelimit.Stats `json:"rate_limits"`
	Usage           map[string]pipeline.Usage  `json:"usage"`
}

// Status reports providers, cache effectiveness, rate-limit state and usage
// counters.
func (s *Service) Status(ctx context.Context) Status {
	providers, err := s.registry.List(ctx)
	if err != nil {
		providers = nil
	}
	defaultProvider, _ := s.registry.Default(ctx)

	return Status{
		DefaultProvider: defaultProvider,
		Providers:       providers,
		Cache:           s.pipe.CacheStats(ctx),
		Limiters:        s.pipe.LimiterStats(),
		Usage:           s.pipe.Usage(),
	}
}

// RuntimeConfig carries the settings that may change on a live service.
// Nil fields are left untouched.
type RuntimeConfig struct {
	RateLimit *ratelimit.Config
	Retry     *pipeline.RetryConfig
	Cache     *cache.Options
}

// ApplyConfig reconfigures rate limiting, retry policy, and cache settings
// without downtime. In-flight requests keep the policy they started with.
func (s *Service) ApplyConfig(ctx context.Context, cfg RuntimeConfig) {
	logger := observability.FromContext(ctx)

	if cfg.RateLimit != nil {
		s.limiters.Configure(*cfg.RateLimit)
		logger.Info("rate limit configuration applied")
	}
	if cfg.Retry != nil {
		s.pipe.ApplyRetryConfig(*cfg.Retry)
		logger.Info("retry configuration applied")
	}
	if cfg.Cache != nil {
		if s.pipe.ApplyCacheOptions(*cfg.Cache) {
			logger.Info("cache configuration applied")
		} else {
			logger.Warn("cache backend does not support runtime reconfiguration")
		}
	}
}

// attachCost stamps the estimated cost onto a result's usage block. When a
// provider returns no usage at all, completion tokens are estimated from the
// generated text so cost attribution never silently reports zero work.
func (s *Service) attachCost(ctx context.Context, result *domain.GenerateResult) {
	if result == nil {
		return
	}
	if result.Usage == nil {
		completion := domain.EstimateTokens(result.Text)
		result.Usage = &domain.Usage{
			CompletionTokens: completion,
			TotalTokens:      completion,
		}
	}
	result.Usage.Cost = s.costs.Estimate(ctx, result.Model, *result.Usage)
}
