package middleware

import (
	"context"
	"time"
)

// Result is the outcome of one rate limit check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the caller may try again
	RetryAfter time.Duration
}

// Limiter decides whether a caller identified by key may make another request
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
	// Name labels the limiter in logs and metrics
	Name() string
}
