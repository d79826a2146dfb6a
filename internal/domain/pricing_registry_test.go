package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestPricingRegistry_Lookup(t *testing.T) {
	reg := domain.NewInMemoryPricingRegistry()
	ctx := context.Background()

	require.NoError(t, reg.RegisterPricing(ctx, "gpt-4", domain.PricingConfig{
		InputCostPer1K:  0.03,
		OutputCostPer1K: 0.06,
	}))
	require.NoError(t, reg.RegisterPricing(ctx, "gpt-4-turbo", domain.PricingConfig{
		InputCostPer1K:  0.01,
		OutputCostPer1K: 0.03,
	}))

	t.Run("exact match wins over prefixes", func(t *testing.T) {
		config, err := reg.GetPricing(ctx, "gpt-4")
		require.NoError(t, err)
		require.Equal(t, 0.03, config.InputCostPer1K)
	})

	t.Run("dated snapshots resolve through the longest prefix", func(t *testing.T) {
		config, err := reg.GetPricing(ctx, "gpt-4-turbo-2024-04-09")
		require.NoError(t, err)
		require.Equal(t, 0.01, config.InputCostPer1K)
	})

	t.Run("unknown models fail the lookup", func(t *testing.T) {
		_, err := reg.GetPricing(ctx, "unlisted-model")
		require.Error(t, err)
	})
}

func TestPricingRegistry_RejectsInvalidRegistrations(t *testing.T) {
	reg := domain.NewInMemoryPricingRegistry()
	ctx := context.Background()

	require.Error(t, reg.RegisterPricing(ctx, "", domain.PricingConfig{}))
	require.Error(t, reg.RegisterPricing(ctx, "gpt-4", domain.PricingConfig{InputCostPer1K: -0.01}))
}
