// Package ratelimit implements the per-client admission gate: a fixed
// time-window counter keyed by client identity, all in process memory.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of an admission check. RetryAfter is only
// meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucket struct {
	windowStart time.Time
	count       int
}

// Limiter counts admissions per client inside a fixed window. The window
// reset and the increment happen under one lock, so no more than the
// configured limit is ever admitted inside a single window instance.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

// New creates a limiter admitting at most limit calls per window per client.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Admit records one request for clientKey and reports whether it is allowed.
func (l *Limiter) Admit(clientKey string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[clientKey]
	if !ok || now.Sub(b.windowStart) >= l.window {
		b = &bucket{windowStart: now}
		l.buckets[clientKey] = b
	}
	if b.count >= l.limit {
		// denied calls do not grow the counter past the limit
		return Decision{RetryAfter: b.windowStart.Add(l.window).Sub(now)}
	}
	b.count++
	return Decision{Allowed: true}
}

// Prune drops buckets whose window has fully elapsed, bounding memory for
// long-running processes with many distinct clients.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports how many client buckets are currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
