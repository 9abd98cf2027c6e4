// Package ratelimit implements the per-key token-bucket admission gate
// (C1). Refill is lazy: each access advances the bucket to "now" before
// checking admission, so steady-state cost is O(1) and needs no background
// ticking on the hot path. A background sweep still runs to bound memory
// against a stream of unique keys.
package ratelimit

/*
	Token bucket rate limiter.

	Each key gets its own bucket sized by capacity (burst) and refilled at
	a fixed rate (tokens/sec). Admission is a single compare-and-swap-free
	critical section per key: the bucket's own mutex, never the whole map's.
*/

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	// DefaultSweepAge discards buckets untouched for this long.
	DefaultSweepAge = 5 * time.Minute
)

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Limiter is a keyed collection of token buckets sharing one capacity and
// refill rate.
type Limiter struct {
	buckets     *xsync.Map[string, *bucket]
	capacity    float64
	refillRate  float64
	now         func() time.Time
}

// New creates a Limiter with the given burst capacity and refill rate in
// tokens per second.
func New(burstSize int, requestsPerSecond float64) *Limiter {
	return &Limiter{
		buckets:    xsync.NewMap[string, *bucket](),
		capacity:   float64(burstSize),
		refillRate: requestsPerSecond,
		now:        time.Now,
	}
}

func (l *Limiter) loadOrCreate(key string) *bucket {
	b, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:     l.capacity,
		lastRefill: l.now(),
	})
	return b
}

// refillLocked advances b to `now`, clamping at capacity. Caller holds
// b.mu.
func (l *Limiter) refillLocked(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * l.refillRate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastRefill = now
}

// Allow refills the bucket for key, then admits n tokens if available.
// allow(key, 0) never decreases tokens and always returns true.
func (l *Limiter) Allow(key string, n float64) bool {
	b := l.loadOrCreate(key)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	l.refillLocked(b, now)

	if n <= 0 {
		return true
	}
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Remaining returns the current token count without refilling. A missing
// key is assumed to be a fresh, full bucket.
func (l *Limiter) Remaining(key string) float64 {
	b, ok := l.buckets.Load(key)
	if !ok {
		return l.capacity
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Reset removes the bucket for key entirely; the next Allow call starts it
// fresh and full.
func (l *Limiter) Reset(key string) {
	l.buckets.Delete(key)
}

// Sweep discards buckets whose last refill is older than DefaultSweepAge,
// bounding memory growth against a stream of unique keys.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-DefaultSweepAge)

	l.buckets.Range(func(key string, b *bucket) bool {
		b.mu.Lock()
		stale := b.lastRefill.Before(cutoff)
		b.mu.Unlock()

		if stale {
			l.buckets.Delete(key)
		}
		return true
	})
}
