package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-process fixed-window limiter. Expired buckets are swept
// on every call, so memory stays bounded by the number of keys seen within one
// window. For large key cardinality use RedisFixedWindow instead.
type FixedWindow struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(fw *FixedWindow) {
		fw.now = now
	}
}

// NewFixedWindow creates an in-memory limiter. Invalid config values fall back
// to the defaults.
func NewFixedWindow(cfg Config, opts ...Option) *FixedWindow {
	fw := &FixedWindow{
		cfg:     cfg.Normalize(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw
}

// Check counts one request for key. A limited request is not counted.
func (fw *FixedWindow) Check(_ context.Context, key string) (Result, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	fw.sweep(now)

	b, ok := fw.buckets[key]
	if !ok {
		fw.buckets[key] = &bucket{count: 1, resetAt: now.Add(fw.cfg.Window)}
		return Result{RetryAfterSeconds: ceilSeconds(fw.cfg.Window)}, nil
	}

	retry := ceilSeconds(b.resetAt.Sub(now))
	if b.count >= fw.cfg.Max {
		return Result{Limited: true, RetryAfterSeconds: retry}, nil
	}
	b.count++
	return Result{RetryAfterSeconds: retry}, nil
}

// sweep drops every bucket whose window has passed. Caller holds mu.
func (fw *FixedWindow) sweep(now time.Time) {
	for k, b := range fw.buckets {
		if !now.Before(b.resetAt) {
			delete(fw.buckets, k)
		}
	}
}

// Len returns the number of live buckets.
func (fw *FixedWindow) Len() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.buckets)
}
