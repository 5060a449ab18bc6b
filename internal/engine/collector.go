package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xenlix/visibility-engine/internal/ratelimit"
	"github.com/xenlix/visibility-engine/internal/resilience"
)

// CollectorConfig tunes one engine's collector.
type CollectorConfig struct {
	// Timeout bounds each network call. Default: 45s.
	Timeout time.Duration
	// Retry configures backoff for transient failures.
	Retry resilience.RetryConfig
}

// Result is a successful collection: the engine's answer plus the
// latency of the call that produced it.
type Result struct {
	Answer  *Answer
	Latency time.Duration
}

// Collector wraps an Engine with the per-source discipline the
// orchestrator relies on: every attempt consumes a slot in the source's
// request window (denial fails fast, never blocks), each call is bounded
// by a timeout classified as transient, and transient failures retry
// with exponential backoff and jitter. The collector never persists
// anything; the caller does.
type Collector struct {
	engine  Engine
	limiter ratelimit.Limiter
	cfg     CollectorConfig
}

// NewCollector wraps an engine with a rate limiter and retry policy.
func NewCollector(e Engine, limiter ratelimit.Limiter, cfg CollectorConfig) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger(e.Name(), "ask")
	}
	return &Collector{engine: e, limiter: limiter, cfg: cfg}
}

// Name returns the wrapped engine's name.
func (c *Collector) Name() string {
	return c.engine.Name()
}

// Collect submits the prompt to the engine. Transient failures are
// retried internally; the error surfaced here is terminal for this call:
// RateLimited, Validation, Parse, or a transient error that exhausted
// its retries.
func (c *Collector) Collect(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()

	answer, err := resilience.DoVal(ctx, c.cfg.Retry, func(ctx context.Context) (*Answer, error) {
		dec, err := c.limiter.Allow(ctx, c.engine.Name())
		if err != nil {
			return nil, eris.Wrapf(err, "collector %s: limiter", c.engine.Name())
		}
		if !dec.Allowed {
			return nil, &resilience.RateLimitedError{
				Source:     c.engine.Name(),
				RetryAfter: dec.RetryAfter,
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		ans, err := c.engine.Ask(callCtx, prompt)
		if err != nil {
			// A per-call deadline is a transient condition; the
			// caller's own cancellation is not.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, resilience.NewTransientError(err, 0)
			}
			return nil, err
		}
		return ans, nil
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)
	zap.L().Debug("engine answered",
		zap.String("engine", c.engine.Name()),
		zap.Duration("latency", latency),
		zap.Int("citations", len(answer.Citations)),
	)

	return &Result{Answer: answer, Latency: latency}, nil
}
