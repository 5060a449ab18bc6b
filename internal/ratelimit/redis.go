package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisWindow is a Limiter backed by Redis counters, for deployments
// where multiple worker processes share per-source budgets. It counts
// requests in fixed window buckets: INCR on a bucket key plus an expiry
// of one window, so state cleans itself up.
type RedisWindow struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisWindow creates a Redis-backed limiter allowing max requests
// per window for each key.
func NewRedisWindow(client *redis.Client, max int, window time.Duration) *RedisWindow {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindow{
		client: client,
		max:    max,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// WithNow sets the clock, for tests.
func (r *RedisWindow) WithNow(now func() time.Time) *RedisWindow {
	r.now = now
	return r
}

func (r *RedisWindow) bucketKey(key string, now time.Time) string {
	bucket := now.UnixMilli() / r.window.Milliseconds()
	return r.prefix + key + ":" + time.UnixMilli(bucket*r.window.Milliseconds()).UTC().Format("20060102T150405.000")
}

// Allow consumes a slot for key in the current window bucket. The INCR
// is unconditional; a denied request decrements to hand the slot back.
func (r *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	bucket := r.bucketKey(key, now)

	count, err := r.client.Incr(ctx, bucket).Result()
	if err != nil {
		return Decision{}, eris.Wrapf(err, "ratelimit: incr %s", key)
	}
	if count == 1 {
		// First hit in this bucket owns setting the expiry.
		if err := r.client.Expire(ctx, bucket, r.window).Err(); err != nil {
			return Decision{}, eris.Wrapf(err, "ratelimit: expire %s", key)
		}
	}

	if count > int64(r.max) {
		if err := r.client.Decr(ctx, bucket).Err(); err != nil {
			return Decision{}, eris.Wrapf(err, "ratelimit: decr %s", key)
		}
		elapsed := now.UnixMilli() % r.window.Milliseconds()
		retryAfter := time.Duration(r.window.Milliseconds()-elapsed) * time.Millisecond
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}
