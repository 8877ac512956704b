package narration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/narration"
)

func TestCacheKey(t *testing.T) {
	a := narration.CacheKey("prompt one")
	assert.Len(t, a, 64)
	assert.Equal(t, a, narration.CacheKey("prompt one"))
	assert.NotEqual(t, a, narration.CacheKey("prompt two"))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := narration.NewMemoryCache()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	v, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := narration.NewMemoryCache()

	require.NoError(t, cache.Set(ctx, "short", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := cache.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "other", "v", time.Minute))
	assert.Equal(t, 1, cache.Len())
}
