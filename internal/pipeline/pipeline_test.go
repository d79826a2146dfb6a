package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/pipeline"
	"github.com/davidbz/hearth/internal/ratelimit"
)

func newTestPipeline(t *testing.T, retries int) (*pipeline.Pipeline, domain.Cache) {
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

	p := pipeline.New(responseCache, limiters, pipeline.RetryConfig{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
	return p, responseCache
}

func TestExecute_RetryExhaustion(t *testing.T) {
	const maxRetries = 3
	p, _ := newTestPipeline(t, maxRetries)

	attempts := 0
	_, err := pipeline.Execute(context.Background(), p, pipeline.Request{
		Provider: "openai",
		Method:   "generateText",
		Priority: pipeline.DefaultPriority,
	}, func(_ context.Context) (*domain.GenerateResult, error) {
		attempts++
		return nil, domain.NewError(domain.ErrorCodeNetworkError, "connection refused")
	})

	require.Error(t, err)
	require.Equal(t, maxRetries+1, attempts)
	require.Equal(t, domain.ErrorCodeNetworkError, domain.CodeOf(err))

	var typed *domain.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, "openai", typed.Provider)
}

func TestExecute_NonRetryableShortCircuit(t *testing.T) {
	p, _ := newTestPipeline(t, 3)

	attempts := 0
	_, err := pipeline.Execute(context.Background(), p, pipeline.Request{
		Provider: "openai",
		Method:   "generateText",
		Priority: pipeline.DefaultPriority,
	}, func(_ context.Context) (*domain.GenerateResult, error) {
		attempts++
		return nil, domain.NewValidationError("prompt cannot be empty")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, domain.ErrorCodeValidationError, domain.CodeOf(err))
}

func TestExecute_CacheShortCircuit(t *testing.T) {
	p, _ := newTestPipeline(t, 0)

	req := pipeline.Request{
		Provider:  "openai",
		Method:    "generateText",
		Params:    map[string]any{"prompt": "hello"},
		Cacheable: true,
		Priority:  pipeline.DefaultPriority,
	}

	calls := 0
	op := func(_ context.Context) (*domain.GenerateResult, error) {
		calls++
		return &domain.GenerateResult{Text: "hi there", Model: "gpt-4"}, nil
	}

	first, err := pipeline.Execute(context.Background(), p, req, op)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	second, err := pipeline.Execute(context.Background(), p, req, op)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "second call must be served from cache")
	require.Equal(t, first.Text, second.Text)

	// The cache hit consumed no rate-limit capacity.
	stats := p.LimiterStats()["openai"]
	require.Equal(t, stats.Capacity-1, stats.Remaining)

	usage := p.Usage()["openai"]
	require.Equal(t, int64(2), usage.Requests)
	require.Equal(t, int64(1), usage.CacheHits)
}

func TestExecute_CacheHitsReturnPrivateCopies(t *testing.T) {
	p, _ := newTestPipeline(t, 0)

	req := pipeline.Request{
		Provider:  "openai",
		Method:    "generateText",
		Params:    map[string]any{"prompt": "hello"},
		Cacheable: true,
		Priority:  pipeline.DefaultPriority,
	}
	op := func(_ context.Context) (*domain.GenerateResult, error) {
		return &domain.GenerateResult{Text: "hi there", Model: "gpt-4"}, nil
	}

	first, err := pipeline.Execute(context.Background(), p, req, op)
	require.NoError(t, err)

	// Mutating a returned result must not reach the cached entry, and every
	// hit must hand out its own copy.
	first.Text = "mutated by caller"

	second, err := pipeline.Execute(context.Background(), p, req, op)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, "hi there", second.Text)

	third, err := pipeline.Execute(context.Background(), p, req, op)
	require.NoError(t, err)
	require.NotSame(t, second, third)
}

func TestExecute_FailuresAreNeverCached(t *testing.T) {
	p, responseCache := newTestPipeline(t, 0)

	req := pipeline.Request{
		Provider:  "openai",
		Method:    "generateText",
		Params:    map[string]any{"prompt": "hello"},
		Cacheable: true,
		Priority:  pipeline.DefaultPriority,
	}

	_, err := pipeline.Execute(context.Background(), p, req, func(_ context.Context) (*domain.GenerateResult, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	key := cache.Key("openai", "generateText", req.Params)
	require.False(t, responseCache.Has(context.Background(), key))

	usage := p.Usage()["openai"]
	require.Equal(t, int64(1), usage.Errors)
}

func TestExecute_UnclassifiedErrorsAreClassified(t *testing.T) {
	p, _ := newTestPipeline(t, 0)

	_, err := pipeline.Execute(context.Background(), p, pipeline.Request{
		Provider: "openai",
		Method:   "generateText",
		Priority: pipeline.DefaultPriority,
	}, func(_ context.Context) (*domain.GenerateResult, error) {
		return nil, errors.New("some raw transport failure")
	})

	var typed *domain.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, domain.ErrorCodeUnknown, typed.Code)
	require.Equal(t, "openai", typed.Provider)
}
