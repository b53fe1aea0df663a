// Package ratelimit implements a redis-backed sliding-window throttle.
// Each key holds a sorted set of request timestamps; the Lua script keeps
// trim, count and insert atomic so concurrent callers never undercount.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-pim/meridian/internal/shared"
)

// Config bounds request volume per key.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = window
	if oldest[2] then
		retry = (tonumber(oldest[2]) + window) - now
	end
	return {0, retry}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// Limiter throttles request volume per key with a trailing window. Keys
// expire with the window, so idle buckets reclaim their memory.
type Limiter struct {
	rdb *redis.Client
	cfg Config
	now func() time.Time
}

// New constructs a Limiter.
func New(rdb *redis.Client, cfg Config) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// Config exposes the configured bounds for route metadata.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check admits or rejects one request for the key. On rejection the error
// carries a retry hint equal to the time until the oldest request in the
// window ages out.
func (l *Limiter) Check(ctx context.Context, key string) error {
	now := l.now().UnixMilli()
	res, err := checkScript.Run(ctx, l.rdb,
		[]string{"ratelimit:" + key},
		now, l.cfg.Window.Milliseconds(), l.cfg.MaxRequests, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return err
	}
	if len(res) == 2 && res[0] == 0 {
		retryAfter := time.Duration(res[1]) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &shared.Error{
			Kind:       shared.KindRateLimited,
			Message:    fmt.Sprintf("rate limit exceeded, retry in %s", retryAfter.Round(time.Second)),
			RetryAfter: retryAfter,
		}
	}
	return nil
}
