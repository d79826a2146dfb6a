package domain_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, domain.EstimateTokens(""))
	require.Equal(t, 1, domain.EstimateTokens("hi"))
	require.Equal(t, 25, domain.EstimateTokens(strings.Repeat("a", 100)))
}

func TestEstimateMessageTokens(t *testing.T) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: strings.Repeat("a", 40)}, // 10 + 4
		{Role: domain.RoleUser, Content: strings.Repeat("b", 80)},   // 20 + 4
	}

	require.Equal(t, 38, domain.EstimateMessageTokens(messages))
}

func TestCostEstimator(t *testing.T) {
	ctx := context.Background()
	registry := domain.NewInMemoryPricingRegistry()
	require.NoError(t, registry.RegisterPricing(ctx, "gpt-4", domain.PricingConfig{
		InputCostPer1K:  0.03,
		OutputCostPer1K: 0.06,
	}))

	estimator := domain.NewCostEstimator(registry)

	t.Run("should compute cost from usage", func(t *testing.T) {
		cost := estimator.Estimate(ctx, "gpt-4", domain.Usage{
			PromptTokens:     1000,
			CompletionTokens: 500,
		})
		require.InDelta(t, 0.06, cost, 0.0001)
	})

	t.Run("should return zero for unknown models", func(t *testing.T) {
		cost := estimator.Estimate(ctx, "unknown-model", domain.Usage{PromptTokens: 1000})
		require.Zero(t, cost)
	})

	t.Run("should estimate text cost with the length heuristic", func(t *testing.T) {
		cost := estimator.EstimateText(ctx, "gpt-4", strings.Repeat("x", 4000), 1000)
		require.InDelta(t, 0.03+0.06, cost, 0.0001)
	})
}
