// Package ratelimit paces outbound requests to the documentation upstream
// with a token bucket, independent of the crawl concurrency bound.
package ratelimit

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Config describes a token bucket: MaxTokens capacity refilled at
// RefillPerSec tokens per second. The bucket starts full.
type Config struct {
	MaxTokens    int
	RefillPerSec float64
}

// DefaultConfig allows bursts of 10 requests refilled over 2 seconds.
func DefaultConfig() Config {
	return Config{MaxTokens: 10, RefillPerSec: 5}
}

// Limiter is a token-bucket rate limiter. Refill is computed lazily from
// elapsed time on every acquire, so an idle limiter costs nothing.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a full bucket with the given config.
func New(cfg Config) *Limiter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 10
	}
	if cfg.RefillPerSec <= 0 {
		cfg.RefillPerSec = 5
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(cfg.RefillPerSec), cfg.MaxTokens)}
}

// Acquire blocks until a token is available or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.AcquireN(ctx, 1)
}

// AcquireN blocks until n tokens are available or the context is done.
func (l *Limiter) AcquireN(ctx context.Context, n int) error {
	if err := l.bucket.WaitN(ctx, n); err != nil {
		return eris.Wrap(err, "ratelimit: acquire")
	}
	return nil
}

// TryAcquire takes a token without blocking, reporting whether one was
// available.
func (l *Limiter) TryAcquire() bool {
	return l.bucket.Allow()
}

// TryAcquireN takes n tokens without blocking.
func (l *Limiter) TryAcquireN(n int) bool {
	return l.bucket.AllowN(time.Now(), n)
}

// Tokens reports the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
