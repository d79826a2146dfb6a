package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/cache"
)

func TestLRU_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c, err := cache.NewLRU(cache.Options{TTL: time.Hour, MaxSize: 3, Enabled: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), i, 0))
	}

	// Touch k0 so k1 becomes the eviction candidate.
	_, ok := c.Get(ctx, "k0")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "k3", 3, 0))

	_, ok = c.Get(ctx, "k1")
	require.False(t, ok)
	_, ok = c.Get(ctx, "k0")
	require.True(t, ok)
	require.Equal(t, int64(1), c.Stats(ctx).Evictions)
}

func TestLRU_ExpiryIsCheckedOnRead(t *testing.T) {
	c, err := cache.NewLRU(cache.Options{TTL: 30 * time.Millisecond, MaxSize: 10, Enabled: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0))

	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestLRU_ConfigureShrinksCapacity(t *testing.T) {
	c, err := cache.NewLRU(cache.Options{TTL: time.Hour, MaxSize: 4, Enabled: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), i, 0))
	}

	c.Configure(cache.Options{TTL: time.Hour, MaxSize: 2, Enabled: true})

	// The two least-recently-used entries are evicted by the resize.
	require.Equal(t, 2, c.Stats(ctx).Entries)
	_, ok := c.Get(ctx, "k3")
	require.True(t, ok)
	_, ok = c.Get(ctx, "k0")
	require.False(t, ok)
}

func TestLRU_DisabledSetIsNoop(t *testing.T) {
	c, err := cache.NewLRU(cache.Options{TTL: time.Hour, MaxSize: 10, Enabled: false})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 0))

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}
