package rate

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares counters between instances. When Redis cannot answer,
// the decision falls back to a process-local MemoryLimiter.
type RedisLimiter struct {
	client   redis.UniversalClient
	prefix   string
	timeout  time.Duration
	fallback *MemoryLimiter
	logger   *slog.Logger
}

func NewRedis(client redis.UniversalClient, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client:   client,
		prefix:   "quill:rl:",
		timeout:  2 * time.Second,
		fallback: NewMemory(),
		logger:   logger,
	}
}

func (l *RedisLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if l.client == nil {
		return l.fallback.Allow(key, limit, window)
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		l.logger.Warn("redis rate limit unavailable, using memory", "err", err)
		return l.fallback.Allow(key, limit, window)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) < 2 {
		return l.fallback.Allow(key, limit, window)
	}
	count, _ := vals[0].(int64)
	ttl, _ := vals[1].(int64)
	if ttl < 0 {
		ttl = window.Milliseconds()
	}
	return count <= int64(limit), time.Duration(ttl) * time.Millisecond
}

// Sweep drops expired fallback buckets. Redis expires its own keys.
func (l *RedisLimiter) Sweep() int {
	return l.fallback.Sweep()
}
