// Package ratelimit limits how often a user may call the AI endpoints.
package ratelimit

import (
	"context"
	"time"

	"integration_server/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the window.
// When it does not, the returned duration is how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration)
}

// The window is a sorted set of request timestamps; trimming, counting and
// adding happen in one script so concurrent servers agree.
var slidingWindowScript = redis.NewScript(`
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

// SlidingWindowLimiter implements sliding window rate limiting using Redis.
// Redis failures let the request through.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindowLimiter(client *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{redis: client, limit: limit, window: window, now: time.Now}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	now := l.now()
	result, err := slidingWindowScript.Run(ctx, l.redis, []string{"ratelimit:" + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing request")
		return true, 0
	}

	switch {
	case result == 1:
		return true, 0
	case result < 0:
		return false, time.Duration(-result) * time.Millisecond
	default:
		return false, l.window
	}
}
