// Package ratelimit provides keyed request limiters for the engine
// collectors. A limiter answers "may this source make a request right
// now" without blocking; callers that are denied fail fast with a
// RateLimitedError carrying the suggested wait.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // how long until a slot frees up, when denied
}

// Limiter answers whether a keyed source may issue a request. Allow
// consumes a slot when it grants one; implementations must be safe for
// concurrent use across job workers.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// SlidingWindow is an in-process Limiter granting at most Max requests
// per Window per key, tracked against actual request timestamps.
type SlidingWindow struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewSlidingWindow creates a sliding-window limiter allowing max
// requests per window for each key.
func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		max:     max,
		window:  window,
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

// WithNow sets the clock, for tests.
func (s *SlidingWindow) WithNow(now func() time.Time) *SlidingWindow {
	s.now = now
	return s
}

// Allow consumes a slot for key if fewer than max requests occurred in
// the trailing window. It never blocks.
func (s *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)

	// Drop timestamps that have left the window.
	kept := s.history[key][:0]
	for _, ts := range s.history[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= s.max {
		// Oldest in-window request determines when a slot frees.
		retryAfter := kept[0].Sub(cutoff)
		s.history[key] = kept
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	s.history[key] = append(kept, now)
	return Decision{Allowed: true}, nil
}

// Sweep discards keys with no in-window activity. Callers run it
// periodically to bound memory on long-lived processes.
func (s *SlidingWindow) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	for key, times := range s.history {
		live := false
		for _, ts := range times {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(s.history, key)
		}
	}
}
