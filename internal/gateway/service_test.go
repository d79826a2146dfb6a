package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/contextwindow"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/gateway"
	"github.com/davidbz/hearth/internal/pipeline"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/ratelimit"
	"github.com/davidbz/hearth/internal/stream"
)

// pricedProvider returns a fixed result with usage, for cost attribution.
type pricedProvider struct{}

func (p *pricedProvider) Name() string { return "priced" }

func (p *pricedProvider) GenerateText(_ context.Context, _ string, _ *domain.GenerateOptions) (*domain.GenerateResult, error) {
	return &domain.GenerateResult{
		Text:     "answer",
		Model:    "gpt-4",
		Provider: "priced",
		Usage:    &domain.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}, nil
}

func (p *pricedProvider) GenerateChat(ctx context.Context, _ []domain.Message, opts *domain.GenerateOptions) (*domain.GenerateResult, error) {
	return p.GenerateText(ctx, "", opts)
}

func (p *pricedProvider) Supports(_ domain.Capability) bool { return false }

func (p *pricedProvider) Defaults() domain.ProviderDefaults {
	return domain.ProviderDefaults{Model: "gpt-4", MaxTokens: 4096}
}

func newTestService(t *testing.T) *gateway.Service {
	t.Helper()

	responseCache := cache.NewMemory(cache.Options{TTL: time.Hour, MaxSize: 100, Enabled: true})
	t.Cleanup(func() { _ = responseCache.Close() })

	limiters := ratelimit.NewRegistry(ratelimit.Config{
		Capacity:       1000,
		RefillInterval: time.Hour,
		MaxConcurrent:  10,
		QueueDepth:     100,
	})
	t.Cleanup(func() { _ = limiters.Close() })

	pipe := pipeline.New(responseCache, limiters, pipeline.RetryConfig{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	pricing := domain.NewInMemoryPricingRegistry()
	ctx := context.Background()
	require.NoError(t, echo.RegisterPricing(ctx, pricing))
	require.NoError(t, pricing.RegisterPricing(ctx, "gpt-4", domain.PricingConfig{
		InputCostPer1K:  0.03,
		OutputCostPer1K: 0.06,
	}))

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(ctx, echo.NewProvider()))
	require.NoError(t, reg.Register(ctx, &pricedProvider{}))

	return gateway.NewService(reg, pipe, limiters, pricing)
}

func TestService_GenerateText(t *testing.T) {
	t.Run("should route to named provider", func(t *testing.T) {
		svc := newTestService(t)

		result, err := svc.GenerateText(context.Background(), "echo", "hello there", nil)
		require.NoError(t, err)
		require.Equal(t, "echo", result.Provider)
		require.Contains(t, result.Text, "hello there")
	})

	t.Run("empty provider name selects the default", func(t *testing.T) {
		svc := newTestService(t)

		result, err := svc.GenerateText(context.Background(), "", "hello there", nil)
		require.NoError(t, err)
		require.Equal(t, "echo", result.Provider)
	})

	t.Run("should reject empty prompt before touching any provider", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.GenerateText(context.Background(), "echo", "   ", nil)
		require.Error(t, err)
		require.Equal(t, domain.ErrorCodeValidationError, domain.CodeOf(err))
	})

	t.Run("should fail for unknown provider", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.GenerateText(context.Background(), "nonexistent", "hello", nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "provider not found")
	})

	t.Run("should attach estimated cost from pricing registry", func(t *testing.T) {
		svc := newTestService(t)

		result, err := svc.GenerateText(context.Background(), "priced", "hello", nil)
		require.NoError(t, err)
		require.NotNil(t, result.Usage)
		// 1000 input at $0.03/1K plus 1000 output at $0.06/1K.
		require.InDelta(t, 0.09, result.Usage.Cost, 1e-9)
	})
}

func TestService_GenerateChat(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.GenerateChat(context.Background(), "echo", []domain.Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)
	require.Contains(t, result.Text, "[user]: hi")

	_, err = svc.GenerateChat(context.Background(), "echo", nil, nil)
	require.Error(t, err)
	require.Equal(t, domain.ErrorCodeValidationError, domain.CodeOf(err))
}

func TestService_CapabilityGating(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GenerateEmbedding(context.Background(), "echo", "some text")
	require.Error(t, err)
	require.Equal(t, domain.ErrorCodeFeatureNotSupported, domain.CodeOf(err))

	_, err = svc.GenerateImage(context.Background(), "echo", "a lighthouse", nil)
	require.Error(t, err)
	require.Equal(t, domain.ErrorCodeFeatureNotSupported, domain.CodeOf(err))

	_, err = svc.OpenTextStream(context.Background(), "priced", "hello", nil)
	require.Error(t, err)
	require.Equal(t, domain.ErrorCodeFeatureNotSupported, domain.CodeOf(err))
}

func TestService_OpenTextStream(t *testing.T) {
	svc := newTestService(t)

	session, err := svc.OpenTextStream(context.Background(), "echo", "one two three", nil)
	require.NoError(t, err)
	require.Equal(t, "echo", session.Provider())

	var text string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				require.Equal(t, stream.StateCompleted, session.State())
				require.Contains(t, text, "one two three")
				return
			}
			if ev.Type == stream.EventChunk {
				text += ev.Text
			}
		case <-timeout:
			t.Fatal("stream did not complete")
		}
	}
}

func TestService_Ask(t *testing.T) {
	svc := newTestService(t)

	answer, err := svc.Ask(context.Background(), "what is up")
	require.NoError(t, err)
	require.Contains(t, answer, "what is up")
}

func TestService_OptimizeContext(t *testing.T) {
	svc := newTestService(t)

	messages := make([]domain.Message, 6)
	for i := range messages {
		messages[i] = domain.Message{Role: domain.RoleUser, Content: "context message number with padding padding"}
	}

	result, err := svc.OptimizeContext(context.Background(), messages, 50, contextwindow.Config{
		Strategy:   contextwindow.StrategySummarize,
		WindowSize: 2,
	})
	require.NoError(t, err)

	// The echo provider acts as the summarizer, so older history collapses
	// into one synthetic system message ahead of the verbatim window.
	require.NotEmpty(t, result.Summary)
	require.Equal(t, domain.RoleSystem, result.Messages[0].Role)
	require.Len(t, result.Messages, 3)
}

func TestService_Status(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GenerateText(context.Background(), "echo", "hello", nil)
	require.NoError(t, err)

	status := svc.Status(context.Background())
	require.Equal(t, "echo", status.DefaultProvider)
	require.Contains(t, status.Providers, "echo")
	require.Contains(t, status.Providers, "priced")
	require.Equal(t, int64(1), status.Usage["echo"].Requests)
	require.Contains(t, status.Limiters, "echo")
}

func TestService_ApplyConfig(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GenerateText(context.Background(), "echo", "hello", nil)
	require.NoError(t, err)

	svc.ApplyConfig(context.Background(), gateway.RuntimeConfig{
		RateLimit: &ratelimit.Config{
			Capacity:       5,
			RefillInterval: time.Hour,
			MaxConcurrent:  2,
			QueueDepth:     10,
		},
	})

	status := svc.Status(context.Background())
	require.Equal(t, 5, status.Limiters["echo"].Capacity)
}

func TestService_ConcurrentCacheHitsAreIsolated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.GenerateText(ctx, "echo", "copy me", nil)
	require.NoError(t, err)

	// Identical requests served from the cache must each get a private
	// result; cost attribution writes to the usage block after every call.
	var wg sync.WaitGroup
	results := make([]*domain.GenerateResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GenerateText(ctx, "echo", "copy me", nil)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.NotSame(t, first, results[i])
		require.Equal(t, first.Text, results[i].Text)
		require.NotNil(t, results[i].Usage)
	}
}

func TestService_ApplyConfigDisablesCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.ApplyConfig(ctx, gateway.RuntimeConfig{
		Cache: &cache.Options{TTL: time.Hour, MaxSize: 100, Enabled: false},
	})

	_, err := svc.GenerateText(ctx, "echo", "not cached", nil)
	require.NoError(t, err)
	require.Equal(t, 0, svc.Status(ctx).Cache.Entries)
}
