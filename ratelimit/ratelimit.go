// Package ratelimit provides a fixed-window request counter used as a soft
// throttle on abuse-prone endpoints. Counters are process-local and reset on
// restart; this is a throttle, not a security boundary.
package ratelimit

import (
	"sync"
	"time"
)

// Decision reports the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is the injectable throttle contract. A production deployment can
// substitute a shared counter store without changing call sites.
type Limiter interface {
	Allow(key string) Decision
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process fixed-window default implementation.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	max    int
	length time.Duration
	now    func() time.Time
}

// NewMemoryLimiter creates a limiter allowing max calls per window length.
func NewMemoryLimiter(max int, length time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		max:     max,
		length:  length,
		now:     time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow records one call for key and reports whether it fits in the current
// window. The first call of a fresh or expired window always passes and
// starts a new window.
func (l *MemoryLimiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.sweep(now)
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.length)}
		return Decision{Allowed: true, Remaining: l.max - 1}
	}

	if w.count >= l.max {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}
	}
	w.count++
	return Decision{Allowed: true, Remaining: l.max - w.count}
}

// sweep drops expired windows. Called opportunistically under the lock when a
// new window starts, so stale keys never accumulate without bound.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
