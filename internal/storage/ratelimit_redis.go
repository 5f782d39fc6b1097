package storage

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ RateLimiter = (*RedisRateLimiter)(nil)

const rateLimitKeyPrefix = "ratelimit:"

//go:embed ratelimit.lua
var rateLimitLua string

var rateLimitScript = redis.NewScript(rateLimitLua)

// RedisRateLimiter is a fixed window counter shared by every instance.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	res, err := rateLimitScript.Run(ctx, r.client,
		[]string{rateLimitKeyPrefix + key},
		r.window.Milliseconds(),
		r.limit,
	).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return RateLimitResult{}, fmt.Errorf("unexpected rate limit reply: %v", res)
	}

	if res[0] == 1 {
		return RateLimitResult{Allowed: true}, nil
	}
	return RateLimitResult{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}
