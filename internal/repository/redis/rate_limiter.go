package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter: each allowed call adds a member
// scored by its timestamp to a sorted set per key
type RateLimiter struct {
	rdb    redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit calls per window for each key
func NewRateLimiter(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// allowScript trims the window, then adds the call only while under the
// limit, in one round trip so concurrent calls cannot overshoot.
// KEYS[1] set; ARGV: window start, limit, now, member, ttl ms.
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// Allow reports whether key may make another call and records it if so
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	windowStart := now - l.window.Milliseconds()

	allowed, err := allowScript.Run(ctx, l.rdb, []string{l.Key(key)},
		windowStart,
		l.limit,
		now,
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
		(l.window * 2).Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}

// Release hands back the most recent call recorded for key
func (l *RateLimiter) Release(ctx context.Context, key string) error {
	return l.rdb.ZPopMax(ctx, l.Key(key), 1).Err()
}

// Key is the sorted set holding key's calls
func (l *RateLimiter) Key(key string) string {
	return fmt.Sprintf("%s:ratelimit:dispatch:%s", l.prefix, key)
}

// Unlimited allows every call. Used when Redis is not configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
