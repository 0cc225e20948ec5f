// Package rate implements the sliding-window request throttle guarding the
// authentication endpoints. Counting and inserting happen inside one Lua
// script, so concurrent callers sharing a clientKey cannot be admitted past
// the ceiling.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a clientKey is at or above the ceiling
// for the trailing window.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps infrastructure failures of the throttle store.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")

// admitScript trims entries older than the trailing window, counts the
// remainder, and appends the new record only when the count is below the
// ceiling. Returns 1 when admitted, 0 when denied.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ceiling = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= ceiling then
  return 0
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return 1
`)

// Config holds throttle tuning parameters.
type Config struct {
	// Window is the trailing interval inspected per clientKey.
	Window time.Duration
	// Ceiling is the number of admitted requests allowed inside the window.
	Ceiling int
	// Prefix namespaces throttle keys in Redis.
	Prefix string
}

// Limiter is a Redis-backed sliding-window limiter keyed by clientKey
// (caller address + endpoint path, derived by the caller).
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
	member func() string
}

// New creates a [Limiter]. now is the injectable clock; member produces
// unique window-record identifiers.
func New(redisClient redis.UniversalClient, cfg Config, now func() time.Time, member func() string) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "thr"
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    now,
		member: member,
	}
}

func (l *Limiter) key(clientKey string) string {
	return l.config.Prefix + ":" + clientKey
}

// Admit records one request for clientKey if the window has capacity.
// Returns nil when admitted, [ErrRateLimited] when denied (no record is
// appended), [ErrRedisUnavailable] on store failure.
func (l *Limiter) Admit(ctx context.Context, clientKey string) error {
	nowMS := l.now().UnixMilli()

	res, err := admitScript.Run(ctx, l.redis,
		[]string{l.key(clientKey)},
		nowMS,
		l.config.Window.Milliseconds(),
		l.config.Ceiling,
		l.member(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrRateLimited
	}

	return nil
}

// Pending returns the number of records currently inside the window for
// clientKey. Missing keys return zero.
func (l *Limiter) Pending(ctx context.Context, clientKey string) (int, error) {
	cutoff := l.now().Add(-l.config.Window).UnixMilli()

	count, err := l.redis.ZCount(ctx, l.key(clientKey),
		fmt.Sprintf("(%d", cutoff), "+inf").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return int(count), nil
}
