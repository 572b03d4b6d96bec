// Package ratelimit provides fixed-window counters keyed by caller-chosen
// strings. Counting is increment-then-compare so concurrent requests cannot
// both slip under a limit.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	// Allow adds cost to the counter for key and reports whether it is still
	// within limit. The counter expires window after its first hit.
	Allow(ctx context.Context, key string, limit, cost int, window time.Duration) (Decision, error)
}

func newDecision(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// InMemoryLimiter is a single-process Limiter for development and tests.
type InMemoryLimiter struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]entry
}

type entry struct {
	count   int
	resetAt time.Time
}

func NewInMemory() *InMemoryLimiter {
	return &InMemoryLimiter{
		now:   time.Now,
		items: make(map[string]entry),
	}
}

// WithClock replaces the time source; used to roll windows in tests.
func (l *InMemoryLimiter) WithClock(now func() time.Time) *InMemoryLimiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

func (l *InMemoryLimiter) Allow(_ context.Context, key string, limit, cost int, window time.Duration) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	l.cleanup(now)

	curr, ok := l.items[key]
	if !ok || !now.Before(curr.resetAt) {
		curr = entry{resetAt: now.Add(window)}
	}
	curr.count += cost
	l.items[key] = curr

	return newDecision(curr.count, limit, curr.resetAt), nil
}

func (l *InMemoryLimiter) cleanup(now time.Time) {
	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}
}
