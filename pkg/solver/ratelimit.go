package solver

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces out reasoning-collaborator calls. It is owned by the
// resolver that uses it; there is no process-wide singleton.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Acquire blocks until a slot is available or the context is done. The
// context carries the tighter of the attempt timeout and the global deadline,
// so a starved acquire surfaces as a budget failure, not a hang.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.interval <= 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	now := time.Now()
	if r.next.Before(now) {
		r.next = now
	}
	wait := r.next.Sub(now)
	r.next = r.next.Add(r.interval)
	r.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
