package ratelimit

import (
	"context"
	"time"

	"github.com/ManuelReschke/TenantFox/internal/pkg/env"
)

const (
	DefaultMax    = 120
	DefaultWindow = 60 * time.Second
)

// Result is the outcome of a single Check call.
type Result struct {
	Limited           bool
	RetryAfterSeconds int
}

// Checker counts a request against key and reports whether it is over the limit.
type Checker interface {
	Check(ctx context.Context, key string) (Result, error)
}

// Config holds the fixed-window parameters.
type Config struct {
	Max    int
	Window time.Duration
}

func DefaultConfig() Config {
	return Config{Max: DefaultMax, Window: DefaultWindow}
}

// Normalize replaces non-positive values with the defaults.
func (c Config) Normalize() Config {
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// ConfigFromEnv reads WEBHOOK_RATE_LIMIT_MAX and WEBHOOK_RATE_LIMIT_WINDOW_SECONDS.
func ConfigFromEnv() Config {
	return Config{
		Max:    env.GetEnvInt("WEBHOOK_RATE_LIMIT_MAX", DefaultMax),
		Window: time.Duration(env.GetEnvInt("WEBHOOK_RATE_LIMIT_WINDOW_SECONDS", int(DefaultWindow/time.Second))) * time.Second,
	}.Normalize()
}

// ceilSeconds rounds a remaining duration up to whole seconds.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
