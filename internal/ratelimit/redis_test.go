package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisWindow(t *testing.T, max int, window time.Duration) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWindow(client, max, window), mr
}

func TestRedisWindow_AllowsUpToMax(t *testing.T) {
	lim, _ := newTestRedisWindow(t, 2, time.Minute)
	ctx := context.Background()

	d, err := lim.Allow(ctx, "perplexity")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = lim.Allow(ctx, "perplexity")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = lim.Allow(ctx, "perplexity")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestRedisWindow_DeniedRequestReturnsSlot(t *testing.T) {
	lim, mr := newTestRedisWindow(t, 1, time.Minute)
	ctx := context.Background()

	fixed := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	lim.WithNow(func() time.Time { return fixed })

	d, _ := lim.Allow(ctx, "e")
	assert.True(t, d.Allowed)
	d, _ = lim.Allow(ctx, "e")
	assert.False(t, d.Allowed)

	// The decrement must leave the counter at max, not above it.
	val, err := mr.Get(lim.bucketKey("e", fixed))
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}

func TestRedisWindow_KeysAreIndependent(t *testing.T) {
	lim, _ := newTestRedisWindow(t, 1, time.Minute)
	ctx := context.Background()

	d, _ := lim.Allow(ctx, "openai")
	assert.True(t, d.Allowed)
	d, _ = lim.Allow(ctx, "openai")
	assert.False(t, d.Allowed)
	d, _ = lim.Allow(ctx, "anthropic")
	assert.True(t, d.Allowed)
}

func TestRedisWindow_NewBucketAfterWindow(t *testing.T) {
	lim, mr := newTestRedisWindow(t, 1, time.Minute)
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lim.WithNow(func() time.Time { return current })

	d, _ := lim.Allow(ctx, "e")
	assert.True(t, d.Allowed)
	d, _ = lim.Allow(ctx, "e")
	assert.False(t, d.Allowed)

	current = current.Add(time.Minute)
	mr.FastForward(time.Minute)

	d, _ = lim.Allow(ctx, "e")
	assert.True(t, d.Allowed)
}
