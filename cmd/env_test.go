//go:build !integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenlix/visibility-engine/internal/ratelimit"
)

func TestSweepWindows(t *testing.T) {
	now := time.Now()
	w := ratelimit.NewSlidingWindow(1, time.Minute).WithNow(func() time.Time { return now })
	env := &collectionEnv{windows: []*ratelimit.SlidingWindow{w}}

	d, err := w.Allow(context.Background(), "perplexity")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Sweeping idle keys must not disturb active limiting.
	env.SweepWindows()
	d, err = w.Allow(context.Background(), "perplexity")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	now = now.Add(2 * time.Minute)
	env.SweepWindows()
	d, err = w.Allow(context.Background(), "perplexity")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
