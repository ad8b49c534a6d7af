// Package ratelimit protects the classifier backend from concurrent
// over-use. All per-message pipelines share one limiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter configuration.
type Config struct {
	MaxConcurrent     int // semaphore width (default: 4)
	RequestsPerSecond int // sustained rate (default: 5)
	BurstSize         int // allowed burst above the rate (default: 5)
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:     4,
		RequestsPerSecond: 5,
		BurstSize:         5,
	}
}

// BackendLimiter serializes access to the classifier backend:
// semaphore for concurrency, sliding window for request rate. With a Redis
// client the window is shared across agent instances; without one a local
// in-process window is used.
type BackendLimiter struct {
	config    *Config
	semaphore chan struct{}
	window    *slidingWindow
}

// NewBackendLimiter creates a limiter. redisClient may be nil.
func NewBackendLimiter(redisClient *redis.Client, config *Config) *BackendLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	return &BackendLimiter{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrent),
		window:    newSlidingWindow(redisClient, config.RequestsPerSecond+config.BurstSize, time.Second),
	}
}

// Acquire blocks until a backend call is permitted or ctx is done. On
// success it returns a release function that must be called when the call
// completes (response, error or timeout alike).
func (l *BackendLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-l.semaphore }

	for {
		allowed, wait := l.window.allow(ctx, key)
		if allowed {
			return release, nil
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
}

// TryAcquire is the non-blocking variant, used by the health endpoint to
// report saturation.
func (l *BackendLimiter) TryAcquire(ctx context.Context, key string) (func(), bool) {
	select {
	case l.semaphore <- struct{}{}:
	default:
		return nil, false
	}
	release := func() { <-l.semaphore }

	if allowed, _ := l.window.allow(ctx, key); !allowed {
		release()
		return nil, false
	}
	return release, true
}

// InFlight returns the number of currently held permits.
func (l *BackendLimiter) InFlight() int {
	return len(l.semaphore)
}

// =============================================================================
// Sliding window
// =============================================================================

type slidingWindow struct {
	redis  *redis.Client
	max    int
	window time.Duration

	mu    sync.Mutex
	local []time.Time
}

func newSlidingWindow(redisClient *redis.Client, max int, window time.Duration) *slidingWindow {
	return &slidingWindow{redis: redisClient, max: max, window: window}
}

// allow checks the window and records the request when permitted. Falls back
// to the local window on Redis errors rather than blocking the pipeline.
func (w *slidingWindow) allow(ctx context.Context, key string) (bool, time.Duration) {
	if w.redis != nil {
		if ok, wait, err := w.allowRedis(ctx, key); err == nil {
			return ok, wait
		}
	}
	return w.allowLocal()
}

var windowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

func (w *slidingWindow) allowRedis(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	result, err := windowScript.Run(ctx, w.redis, []string{fmt.Sprintf("ratelimit:%s", key)},
		now.UnixMilli(),
		now.Add(-w.window).UnixMilli(),
		w.max,
		w.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, 0, err
	}
	if result == 1 {
		return true, 0, nil
	}
	if result < 0 {
		return false, time.Duration(-result) * time.Millisecond, nil
	}
	return false, w.window, nil
}

func (w *slidingWindow) allowLocal() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-w.window)
	kept := w.local[:0]
	for _, t := range w.local {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.local = kept

	if len(w.local) < w.max {
		w.local = append(w.local, now)
		return true, 0
	}
	return false, w.local[0].Add(w.window).Sub(now)
}
