package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 2 * time.Second

// The first hit in a window sets the expiry; later hits only increment, so the
// window is fixed from its first request.
var windowScript = redis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[2])
if current == tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

var errUnexpectedReply = errors.New("ratelimit: unexpected redis reply")

// RedisLimiter shares counters between instances. Unlike an in-process
// limiter it reports store failures instead of guessing; the caller decides
// whether to fail open or closed.
type RedisLimiter struct {
	Client  *redis.Client
	Prefix  string
	Timeout time.Duration
}

func NewRedis(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		Client:  client,
		Prefix:  "rl:",
		Timeout: defaultRedisTimeout,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit, cost int, window time.Duration) (Decision, error) {
	if l.Client == nil {
		return Decision{}, errors.New("ratelimit: redis client is nil")
	}
	if cost <= 0 {
		cost = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := windowScript.Run(opCtx, l.Client, []string{l.Prefix + key}, window.Milliseconds(), cost).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: run window script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return Decision{}, errUnexpectedReply
	}
	count, ok := vals[0].(int64)
	if !ok {
		return Decision{}, errUnexpectedReply
	}
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	resetAt := time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond)
	return newDecision(int(count), limit, resetAt), nil
}
