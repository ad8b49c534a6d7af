package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBackendLimiterSemaphoreBound(t *testing.T) {
	l := NewBackendLimiter(nil, &Config{MaxConcurrent: 2, RequestsPerSecond: 100, BurstSize: 0})
	ctx := context.Background()

	r1, ok := l.TryAcquire(ctx, "backend")
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	r2, ok := l.TryAcquire(ctx, "backend")
	if !ok {
		t.Fatal("second acquire should succeed")
	}
	if _, ok := l.TryAcquire(ctx, "backend"); ok {
		t.Fatal("third acquire should be rejected by the semaphore")
	}
	if got := l.InFlight(); got != 2 {
		t.Fatalf("InFlight = %d, want 2", got)
	}

	r1()
	r2()
	if got := l.InFlight(); got != 0 {
		t.Fatalf("InFlight after release = %d, want 0", got)
	}
}

func TestBackendLimiterWindowRate(t *testing.T) {
	l := NewBackendLimiter(nil, &Config{MaxConcurrent: 10, RequestsPerSecond: 2, BurstSize: 0})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		release, ok := l.TryAcquire(ctx, "backend")
		if !ok {
			t.Fatalf("acquire %d should be inside the window", i)
		}
		release()
	}
	if _, ok := l.TryAcquire(ctx, "backend"); ok {
		t.Fatal("acquire beyond the window rate should be rejected")
	}
}

func TestBackendLimiterAcquireRespectsContext(t *testing.T) {
	l := NewBackendLimiter(nil, &Config{MaxConcurrent: 1, RequestsPerSecond: 100, BurstSize: 0})

	release, err := l.Acquire(context.Background(), "backend")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := l.Acquire(ctx, "backend"); err == nil {
		t.Fatal("Acquire with held semaphore should fail once context expires")
	}
}
