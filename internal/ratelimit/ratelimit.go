// Package ratelimit provides the limiter RecoveryPool uses to bound
// sponsorship throughput. It wraps a single golang.org/x/time/rate token
// bucket refilled at PerMinute/60 tokens per second with capacity Burst.
// It does not count requests over an exact sliding one-minute window, so
// up to Burst requests can pass at once.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls limiter construction.
type Config struct {
	PerMinute float64
	Burst     int
}

// DefaultConfig returns a conservative 30-requests-per-minute limiter.
func DefaultConfig() Config {
	return Config{PerMinute: 30, Burst: 10}
}

// Limiter applies the token bucket described above to one keyed resource
// (the Recovery Pool address). One Limiter instance is created per
// Recovery Pool.
type Limiter struct {
	mu        sync.RWMutex
	perMinute *rate.Limiter
	config    Config
}

// New builds a Limiter from Config, applying sane defaults for zero
// values.
func New(cfg Config) *Limiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.PerMinute / 3)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}

	perSecond := cfg.PerMinute / 60.0
	return &Limiter{
		perMinute: rate.NewLimiter(rate.Limit(perSecond), cfg.Burst),
		config:    cfg,
	}
}

// Allow reports whether a sponsorship may proceed right now without
// blocking the caller.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.perMinute.Allow()
}

// Wait blocks until a slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	limiter := l.perMinute
	l.mu.RUnlock()
	return limiter.Wait(ctx)
}

// Reset clears accumulated tokens back to a fresh limiter, used in tests
// and after a manual operator override.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	perSecond := l.config.PerMinute / 60.0
	l.perMinute = rate.NewLimiter(rate.Limit(perSecond), l.config.Burst)
}

// retryAfter estimates how long until the next token is available,
// useful for surfacing a Retry-After header on a 429.
func (l *Limiter) retryAfter() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r := l.perMinute.Reserve()
	defer r.Cancel()
	return r.Delay()
}

// RetryAfter exposes retryAfter for callers that need to report a
// Retry-After duration without consuming a token.
func (l *Limiter) RetryAfter() time.Duration { return l.retryAfter() }
