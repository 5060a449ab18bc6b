package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/ratelimit"
	"github.com/xenlix/visibility-engine/internal/resilience"
)

// fakeEngine scripts a sequence of responses for Collector tests.
type fakeEngine struct {
	name  string
	calls int
	ask   func(call int, ctx context.Context, prompt string) (*Answer, error)
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Ask(ctx context.Context, prompt string) (*Answer, error) {
	f.calls++
	return f.ask(f.calls, ctx, prompt)
}

func fastCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Timeout: time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func TestCollector_Success(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(_ int, _ context.Context, prompt string) (*Answer, error) {
		return &Answer{
			Text:      "Acme leads the market.",
			Citations: []model.EngineCitation{{URL: "https://acme.example"}},
		}, nil
	}}
	c := NewCollector(fe, ratelimit.NewSlidingWindow(10, time.Minute), fastCollectorConfig())

	res, err := c.Collect(context.Background(), "who leads the market?")
	require.NoError(t, err)
	assert.Equal(t, "Acme leads the market.", res.Answer.Text)
	assert.Len(t, res.Answer.Citations, 1)
	assert.GreaterOrEqual(t, res.Latency, time.Duration(0))
	assert.Equal(t, 1, fe.calls)
}

func TestCollector_RateLimitedFailsFast(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(_ int, _ context.Context, _ string) (*Answer, error) {
		return &Answer{Text: "ok"}, nil
	}}
	c := NewCollector(fe, ratelimit.NewSlidingWindow(1, time.Minute), fastCollectorConfig())

	_, err := c.Collect(context.Background(), "q")
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Collect(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	// Fail fast: no blocking on the window, no retries burned.
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, fe.calls)
}

func TestCollector_RetriesTransient(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(call int, _ context.Context, _ string) (*Answer, error) {
		if call < 3 {
			return nil, resilience.NewTransientError(errors.New("upstream 503"), 503)
		}
		return &Answer{Text: "recovered"}, nil
	}}
	c := NewCollector(fe, ratelimit.NewSlidingWindow(10, time.Minute), fastCollectorConfig())

	res, err := c.Collect(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Answer.Text)
	assert.Equal(t, 3, fe.calls)
}

func TestCollector_TransientExhaustsRetries(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(_ int, _ context.Context, _ string) (*Answer, error) {
		return nil, resilience.NewTransientError(errors.New("upstream down"), 502)
	}}
	c := NewCollector(fe, ratelimit.NewSlidingWindow(10, time.Minute), fastCollectorConfig())

	_, err := c.Collect(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, 3, fe.calls)
}

func TestCollector_ValidationNotRetried(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(_ int, _ context.Context, _ string) (*Answer, error) {
		return nil, resilience.NewValidationError("model does not exist")
	}}
	c := NewCollector(fe, ratelimit.NewSlidingWindow(10, time.Minute), fastCollectorConfig())

	_, err := c.Collect(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, resilience.IsValidation(err))
	assert.Equal(t, 1, fe.calls)
}

func TestCollector_TimeoutClassifiedTransient(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(_ int, ctx context.Context, _ string) (*Answer, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := fastCollectorConfig()
	cfg.Timeout = 5 * time.Millisecond
	cfg.Retry.MaxAttempts = 2
	c := NewCollector(fe, ratelimit.NewSlidingWindow(10, time.Minute), cfg)

	_, err := c.Collect(context.Background(), "q")
	require.Error(t, err)
	// Both attempts timed out, each classified as transient.
	assert.Equal(t, 2, fe.calls)
	assert.True(t, resilience.IsTransient(err))
}

func TestCollector_EachAttemptConsumesWindowSlot(t *testing.T) {
	fe := &fakeEngine{name: "fake", ask: func(_ int, _ context.Context, _ string) (*Answer, error) {
		return nil, resilience.NewTransientError(errors.New("flaky"), 500)
	}}
	// Two slots, three attempts configured: the third attempt must be
	// denied by the window, surfacing RateLimited rather than the
	// transient error.
	c := NewCollector(fe, ratelimit.NewSlidingWindow(2, time.Minute), fastCollectorConfig())

	_, err := c.Collect(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.Equal(t, 2, fe.calls)
}

func TestRegistry_RegisterGetNames(t *testing.T) {
	r := NewRegistry()
	lim := ratelimit.NewSlidingWindow(10, time.Minute)
	mk := func(name string) *Collector {
		return NewCollector(&fakeEngine{name: name, ask: func(_ int, _ context.Context, _ string) (*Answer, error) {
			return &Answer{Text: "x"}, nil
		}}, lim, fastCollectorConfig())
	}

	r.Register(mk("perplexity"))
	r.Register(mk("anthropic"))
	r.Register(mk("openai"))

	assert.Equal(t, []string{"anthropic", "openai", "perplexity"}, r.Names())
	assert.NotNil(t, r.Get("openai"))
	assert.Nil(t, r.Get("missing"))
}
