package solver

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSpacesCalls(t *testing.T) {
	r := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := r.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() failed: %v", err)
		}
	}
	elapsed := time.Since(start)
	// First acquire is immediate; the next two wait one interval each.
	if elapsed < 90*time.Millisecond {
		t.Errorf("three acquires took %v, want >= ~100ms", elapsed)
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	r := NewRateLimiter(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() should be immediate: %v", err)
	}
	if err := r.Acquire(ctx); err == nil {
		t.Error("second Acquire() should fail when context expires first")
	}
}

func TestRateLimiterNilSafe(t *testing.T) {
	var r *RateLimiter
	if err := r.Acquire(context.Background()); err != nil {
		t.Errorf("nil limiter Acquire() = %v, want nil", err)
	}
}

func TestRateLimiterZeroInterval(t *testing.T) {
	r := NewRateLimiter(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := r.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() failed: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("zero-interval limiter should not block")
	}
}
