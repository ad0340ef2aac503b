package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter   *rate.Limiter
	perMinute int
	burst     int
	lastSeen  time.Time
}

// Limiter keeps one token bucket per caller key
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	now     func() time.Time
}

func NewLimiter(idleTTL time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow takes one token from the bucket of key. When the bucket is empty it
// returns false and how long until a token is available. A non-positive
// perMinute disables limiting for the key.
func (l *Limiter) Allow(key string, perMinute, burst int) (bool, time.Duration) {
	if perMinute <= 0 {
		return true, 0
	}
	if burst <= 0 {
		burst = perMinute
	}

	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok || b.perMinute != perMinute || b.burst != burst {
		b = &bucket{
			limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst),
			perMinute: perMinute,
			burst:     burst,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// Sweep drops buckets idle for longer than the idle TTL and returns how many were removed
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets every interval until ctx is done
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// RetryAfterSeconds rounds d up to whole seconds, minimum one
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
