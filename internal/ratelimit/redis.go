package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript checks and increments in one round trip. A key that has
// reached the limit is left untouched; the first increment sets the expiry,
// so an elapsed window resets by key expiry inside the same atomic call.
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  return {0, current, ttl}
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, n, ttl}
`)

type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, policy Policy) (Decision, error) {
	policy = normalizePolicy(policy)
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.redisKey(key)}, policy.Limit, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}
	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl <= 0 {
		ttl = policy.Window
	}
	now := time.Now()
	if res[0] == 0 {
		return Decision{Allowed: false, RetryAfter: ttl, ResetAt: now.Add(ttl)}, nil
	}
	remaining := policy.Limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: now.Add(ttl)}, nil
}

func (l *RedisFixedWindowLimiter) redisKey(key string) string {
	return l.prefix + ":" + key
}
