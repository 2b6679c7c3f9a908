// Package ratelimit implements a per-caller token bucket rate limiter.
// Thread-safe. No background goroutines — tokens are refilled lazily on each
// Allow call.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a caller has exhausted their token bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the token bucket rate limiter.
type Config struct {
	Requests int           // Tokens added per Window. 0 = unlimited (Allow always succeeds).
	Window   time.Duration // Refill window. 0 defaults to one minute.
	Burst    int           // Maximum tokens in bucket. 0 = defaults to Requests.
}

// Limiter is a per-caller token bucket rate limiter.
// Each caller gets an independent bucket; one caller cannot exhaust
// another's quota.
type Limiter struct {
	mu      sync.Mutex
	callers map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // max bucket capacity
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a rate limiter with the given configuration.
// If Requests is 0, Allow always succeeds (unlimited).
func NewLimiter(cfg Config) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Requests
	}
	if burst <= 0 {
		burst = 1 // safety floor
	}
	return &Limiter{
		callers: make(map[string]*bucket),
		rate:    float64(cfg.Requests) / window.Seconds(),
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow checks whether the caller has tokens remaining.
// Consumes one token on success. Returns ErrRateLimited if the bucket is empty.
func (l *Limiter) Allow(callerID string) error {
	// Unlimited mode.
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.callers[callerID]
	if !ok {
		// First request: start with a full bucket.
		b = &bucket{tokens: l.burst, lastFill: now}
		l.callers[callerID] = b
	}

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastFill = now

	// Try to consume one token.
	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// SetClock overrides the limiter's time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
