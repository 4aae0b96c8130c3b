package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter is a fixed window counter in Redis, shared by every
// instance of the service. The window starts with a key's first request.
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "familyaccess:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// Name implements Limiter
func (rl *DistributedRateLimiter) Name() string { return "redis" }

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts the request against the current window. The burst allowance
// is added to the window limit. The window key is created with its expiry
// in the same transaction that increments it, so concurrent first requests
// cannot leave a counter without a TTL or push the window back.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	pipe.SetNX(ctx, redisKey, 0, rl.config.WindowDuration)
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("redis error: %w", err)
	}

	remainingTTL := ttl.Val()
	if remainingTTL <= 0 {
		remainingTTL = rl.config.WindowDuration
	}

	limit := rl.config.capacity()
	count := int(incr.Val())
	res := Result{Limit: rl.config.RequestsPerWindow, Allowed: count <= limit}
	if res.Allowed {
		res.Remaining = limit - count
	} else {
		res.RetryAfter = remainingTTL
	}
	return res, nil
}

// HealthCheck verifies Redis connectivity for rate limiting
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx).Err()
}
