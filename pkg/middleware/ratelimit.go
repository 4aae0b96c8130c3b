package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns per-caller rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 300,
		WindowDuration:    time.Minute,
		BurstSize:         30,
	}
}

// Validate rejects configurations that would never admit a request
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("requests per window must be positive, got %d", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window duration must be positive, got %s", c.WindowDuration)
	}
	if c.BurstSize < 0 {
		return fmt.Errorf("burst size must not be negative, got %d", c.BurstSize)
	}
	return nil
}

func (c *RateLimitConfig) capacity() int {
	return c.RequestsPerWindow + c.BurstSize
}

// interval is the time it takes to refill one token
func (c *RateLimitConfig) interval() time.Duration {
	return c.WindowDuration / time.Duration(c.RequestsPerWindow)
}

// fillTime is how long an empty bucket takes to refill completely
func (c *RateLimitConfig) fillTime() time.Duration {
	return time.Duration(c.capacity()) * c.interval()
}

// RateLimiter is an in-process token bucket limiter. Each key starts with
// RequestsPerWindow+BurstSize tokens and refills at RequestsPerWindow per
// WindowDuration.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Name implements Limiter
func (rl *RateLimiter) Name() string { return "memory" }

// Allow takes a token from the bucket for key
func (rl *RateLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.config.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	rl.refill(b, now)

	res := Result{Limit: rl.config.RequestsPerWindow}
	if b.tokens > 0 {
		b.tokens--
		res.Allowed = true
		res.Remaining = b.tokens
		return res, nil
	}
	res.RetryAfter = rl.config.interval() - now.Sub(b.lastUpdate)
	if res.RetryAfter <= 0 {
		res.RetryAfter = rl.config.interval()
	}
	return res, nil
}

// refill adds whole tokens for the elapsed time. lastUpdate only advances by
// the time those tokens account for, so partial progress is kept.
func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	interval := rl.config.interval()
	if interval <= 0 {
		b.tokens = rl.config.capacity()
		b.lastUpdate = now
		return
	}
	elapsed := now.Sub(b.lastUpdate)
	tokensToAdd := int(elapsed / interval)
	if tokensToAdd <= 0 {
		return
	}
	b.tokens += tokensToAdd
	if full := rl.config.capacity(); b.tokens >= full {
		b.tokens = full
		b.lastUpdate = now
		return
	}
	b.lastUpdate = b.lastUpdate.Add(time.Duration(tokensToAdd) * interval)
}

// Cleanup removes buckets idle for more than two windows. A bucket that idle
// is full again, so dropping it changes nothing for its caller.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}
