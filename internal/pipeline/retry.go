package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// RetryConfig holds the backoff policy applied to retryable failures.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // first backoff delay
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultRetryConfig returns the standard policy: three retries with
// exponential backoff from 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	return c
}

// backoffDelay computes baseDelay * 2^attempt plus up to 10% jitter,
// capped at MaxDelay.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// doWithRetry runs op under the retry policy. Only classified retryable
// errors are retried; the final attempt's classified error, not an
// aggregate, is what propagates after exhaustion.
func doWithRetry[T any](
	ctx context.Context,
	provider string,
	cfg RetryConfig,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	attempts := cfg.MaxRetries + 1
	var lastErr *domain.Error

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = domain.Classify(provider, err)
		if !lastErr.Retryable || attempt == attempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		observability.FromContext(ctx).Debug("retrying after failure",
			observability.String("code", string(lastErr.Code)),
			observability.Int("attempt", attempt+1),
			observability.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, domain.Classify(provider, ctx.Err())
		}
	}

	return zero, lastErr
}
