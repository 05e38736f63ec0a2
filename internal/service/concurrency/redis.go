package concurrency

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var acquireScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', key) or '0')
if current < limit then
  current = redis.call('INCR', key)
  if ttl > 0 then
    redis.call('PEXPIRE', key, ttl)
  end
  return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 1 then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECR', key)
`)

// RedisGauge shares in-flight counts across engine instances. Counters
// expire after ttl so a crashed worker cannot hold capacity forever.
type RedisGauge struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisGauge constructs a RedisGauge.
func NewRedisGauge(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisGauge {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "leadengine"
	}
	return &RedisGauge{client: client, prefix: prefix, ttl: ttl}
}

// TryAcquire reserves a slot for key when fewer than limit are in flight.
func (g *RedisGauge) TryAcquire(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	res, err := acquireScript.Run(ctx, g.client, []string{g.key(key)}, limit, g.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("gauge acquire: %w", err)
	}
	return res == 1, nil
}

// Release frees a previously acquired slot.
func (g *RedisGauge) Release(ctx context.Context, key string) error {
	if _, err := releaseScript.Run(ctx, g.client, []string{g.key(key)}).Int(); err != nil {
		return fmt.Errorf("gauge release: %w", err)
	}
	return nil
}

// InFlight reads the current count for key.
func (g *RedisGauge) InFlight(ctx context.Context, key string) (int, error) {
	n, err := g.client.Get(ctx, g.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("gauge read: %w", err)
	}
	return n, nil
}

func (g *RedisGauge) key(dialingRuleID string) string {
	return fmt.Sprintf("%s:dialing:%s:inflight", g.prefix, dialingRuleID)
}

var _ Gauge = (*RedisGauge)(nil)
