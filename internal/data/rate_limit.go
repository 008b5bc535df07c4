package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"TryOn/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes, counts and conditionally records one request atomically.
// A timestamp t is expired when now - t >= window, so the prune range is inclusive.
//
// KEYS[1] window key; ARGV: now ms, expiry cutoff ms, max requests, member, window ms.
// Returns 1 when admitted, 0 when rejected.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

// RedisRateLimiter implements biz.Admission on Redis sorted sets so that several
// service instances share one window per key. Idle keys expire through PEXPIRE.
type RedisRateLimiter struct {
	rdb         *redis.Client
	maxRequests int
	windowMs    int64
	now         func() time.Time
	logger      *log.Helper
}

var (
	_ biz.Admission     = (*RedisRateLimiter)(nil)
	_ biz.WindowCounter = (*RedisRateLimiter)(nil)
)

// NewRedisRateLimiter creates a shared limiter admitting maxRequests per window.
func NewRedisRateLimiter(rdb *redis.Client, maxRequests int, window time.Duration, logger log.Logger) (*RedisRateLimiter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if maxRequests <= 0 {
		return nil, fmt.Errorf("redis rate limiter: maxRequests must be positive, got %d", maxRequests)
	}
	if window.Milliseconds() <= 0 {
		return nil, fmt.Errorf("redis rate limiter: window must be at least 1ms, got %s", window)
	}

	return &RedisRateLimiter{
		rdb:         rdb,
		maxRequests: maxRequests,
		windowMs:    window.Milliseconds(),
		now:         time.Now,
		logger:      log.NewHelper(logger),
	}, nil
}

// Allow implements biz.Admission.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	admitted, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{getRateLimitKey(key)},
		now, now-r.windowMs, r.maxRequests, member, r.windowMs,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit for %s: %w", key, err)
	}

	if admitted == 0 {
		r.logger.Debugw("msg", "rate limit exceeded", "key", key, "max_requests", r.maxRequests)
		return false, nil
	}
	return true, nil
}

// Count returns the number of requests recorded for key within the current window.
func (r *RedisRateLimiter) Count(ctx context.Context, key string) (int, error) {
	floor := strconv.FormatInt(r.now().UnixMilli()-r.windowMs, 10)
	n, err := r.rdb.ZCount(ctx, getRateLimitKey(key), "("+floor, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit window for %s: %w", key, err)
	}
	return int(n), nil
}

// getRateLimitKey generates the Redis key of one window.
// Format: ratelimit:{key}
func getRateLimitKey(key string) string {
	return "ratelimit:" + key
}
