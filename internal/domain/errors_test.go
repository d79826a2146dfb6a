package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "connection reset" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Run("should pass through typed errors and stamp provider", func(t *testing.T) {
		typed := domain.NewValidationError("prompt cannot be empty")

		got := domain.Classify("openai", fmt.Errorf("wrapped: %w", typed))

		require.Equal(t, domain.ErrorCodeValidationError, got.Code)
		require.Equal(t, "openai", got.Provider)
		require.False(t, got.Retryable)
	})

	t.Run("should map deadline exceeded to timeout", func(t *testing.T) {
		got := domain.Classify("openai", context.DeadlineExceeded)

		require.Equal(t, domain.ErrorCodeTimeout, got.Code)
		require.True(t, got.Retryable)
	})

	t.Run("should map net timeout to timeout", func(t *testing.T) {
		got := domain.Classify("openai", &fakeNetError{timeout: true})
		require.Equal(t, domain.ErrorCodeTimeout, got.Code)
	})

	t.Run("should map net failure to network error", func(t *testing.T) {
		got := domain.Classify("openai", &fakeNetError{timeout: false})

		require.Equal(t, domain.ErrorCodeNetworkError, got.Code)
		require.True(t, got.Retryable)
	})

	t.Run("should map unclassifiable errors to unknown", func(t *testing.T) {
		got := domain.Classify("openai", errors.New("something odd"))

		require.Equal(t, domain.ErrorCodeUnknown, got.Code)
		require.False(t, got.Retryable)
	})

	t.Run("should not retry caller cancellation", func(t *testing.T) {
		got := domain.Classify("openai", context.Canceled)
		require.False(t, got.Retryable)
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      domain.ErrorCode
		retryable bool
	}{
		{401, domain.ErrorCodeAuthenticationFailed, false},
		{403, domain.ErrorCodeAuthenticationFailed, false},
		{404, domain.ErrorCodeModelNotFound, false},
		{429, domain.ErrorCodeRateLimitExceeded, true},
		{408, domain.ErrorCodeTimeout, true},
		{400, domain.ErrorCodeValidationError, false},
		{500, domain.ErrorCodeNetworkError, true},
		{503, domain.ErrorCodeNetworkError, true},
	}

	for _, tc := range tests {
		got := domain.ClassifyStatus("openai", tc.status, errors.New("raw"))
		require.Equal(t, tc.code, got.Code, "status %d", tc.status)
		require.Equal(t, tc.retryable, got.Retryable, "status %d", tc.status)
		require.Equal(t, tc.status, got.Status)
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Run("should expose retryable flag through wrapping", func(t *testing.T) {
		err := fmt.Errorf("call failed: %w", domain.NewError(domain.ErrorCodeNetworkError, "boom"))

		require.True(t, domain.IsRetryable(err))
		require.Equal(t, domain.ErrorCodeNetworkError, domain.CodeOf(err))
	})

	t.Run("should build feature gap errors with capability detail", func(t *testing.T) {
		err := domain.NewFeatureNotSupportedError("echo", domain.CapabilityImage)

		require.Equal(t, domain.ErrorCodeFeatureNotSupported, err.Code)
		require.Equal(t, "echo", err.Provider)
		require.Equal(t, "image", err.Details["capability"])
		require.False(t, err.Retryable)
	})
}
