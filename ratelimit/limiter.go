package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements per-endpoint token bucket rate limiting. Buckets are
// created lazily and sized to the endpoint's configured rate.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	rate     float64 // tokens per second
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request for the key may proceed now.
// A rate of 0 means unlimited.
func (l *Limiter) Allow(key string, rate int) bool {
	if rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(key, float64(rate))
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until the rate limit admits the request or the context is
// cancelled. A rate of 0 means unlimited.
func (l *Limiter) Wait(ctx context.Context, key string, rate int) error {
	if rate <= 0 {
		return nil
	}

	for {
		if l.Allow(key, rate) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Second) / float64(rate))):
			// Retry after roughly one token interval.
		}
	}
}

// Reset drops the bucket for a key, typically after an endpoint's rate
// limit changes.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *Limiter) bucketFor(key string, rate float64) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:   rate, // start full
			lastFill: time.Now(),
			rate:     rate,
		}
		l.buckets[key] = b
	}
	return b
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate // burst size equals the rate
	}
	b.lastFill = now
}
