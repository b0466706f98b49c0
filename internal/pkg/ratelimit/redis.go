package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:webhook:"

// fixedWindowScript returns {limited, remaining_ms}. The counter key expires
// with the window, so no sweep is needed.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if (not current) or ttl <= 0 then
  redis.call('SET', KEYS[1], '1', 'PX', ARGV[2])
  return {0, tonumber(ARGV[2])}
end
if tonumber(current) >= tonumber(ARGV[1]) then
  return {1, ttl}
end
redis.call('INCR', KEYS[1])
return {0, ttl}
`)

// RedisFixedWindow shares fixed-window counters between instances through Redis.
type RedisFixedWindow struct {
	rdb redis.Scripter
	cfg Config
}

// NewRedisFixedWindow creates a Redis-backed limiter with the same semantics as
// FixedWindow.
func NewRedisFixedWindow(rdb redis.Scripter, cfg Config) *RedisFixedWindow {
	return &RedisFixedWindow{rdb: rdb, cfg: cfg.Normalize()}
}

func (r *RedisFixedWindow) Check(ctx context.Context, key string) (Result, error) {
	res, err := fixedWindowScript.Run(ctx, r.rdb,
		[]string{redisKeyPrefix + key},
		r.cfg.Max, r.cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for %q: %w", key, err)
	}
	if len(res) != 2 {
		return Result{}, fmt.Errorf("rate limit check for %q: unexpected script reply %v", key, res)
	}
	return Result{
		Limited:           res[0] == 1,
		RetryAfterSeconds: ceilSeconds(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
