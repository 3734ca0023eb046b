package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "shelflife:ratelimit:"

// RateLimitConfig bounds how often one client may trigger a sweep.
type RateLimitConfig struct {
	Limit  int           // triggers admitted per window
	Window time.Duration // sliding window length
}

// RateLimitResult is the outcome of one trigger attempt.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time // when the oldest counted trigger leaves the window
}

// slidingWindow prunes, counts and admits in one server-side step so two
// concurrent triggers cannot both take the last slot.
//
// KEYS[1] window key
// ARGV    now_ms, window_ms, limit, member, ttl_ms
// returns {allowed, count_after, oldest_ms}
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, ARGV[5])
	count = count + 1
	allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end

return {allowed, count, oldest}
`)

// RateLimiter is a sliding-window limiter backed by a Redis sorted set per
// key. The HTTP layer keys it by client IP to throttle manual sweep triggers.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Allow records one trigger for key if the window has room.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := r.now()
	windowMs := r.config.Window.Milliseconds()
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())

	vals, err := slidingWindow.Run(ctx, r.client.rdb, []string{keyPrefix + key},
		now.UnixMilli(), windowMs, r.config.Limit, member, windowMs+1000,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}

	allowed, count, oldest := vals[0] == 1, int(vals[1]), vals[2]
	result := &RateLimitResult{
		Allowed:   allowed,
		Limit:     r.config.Limit,
		Remaining: max(0, r.config.Limit-count),
		ResetAt:   time.UnixMilli(oldest).Add(r.config.Window),
	}

	if !allowed {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("current", count),
			zap.Int("limit", r.config.Limit),
		)
	}
	return result, nil
}
