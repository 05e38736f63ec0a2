package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Spacer enforces a minimum gap between admissions under one key. Reserve
// admits at now, or reports the earliest instant the next admission may
// happen.
type Spacer interface {
	Reserve(ctx context.Context, key string, gap time.Duration, now time.Time) (ok bool, next time.Time, err error)
}

// LocalSpacer spaces admissions within one process.
type LocalSpacer struct {
	mu       sync.Mutex
	limiters map[string]*gapLimiter
}

type gapLimiter struct {
	gap     time.Duration
	limiter *rate.Limiter
}

// NewLocalSpacer constructs an empty LocalSpacer.
func NewLocalSpacer() *LocalSpacer {
	return &LocalSpacer{limiters: map[string]*gapLimiter{}}
}

// Reserve admits one call at now when gap has elapsed since the previous one.
func (s *LocalSpacer) Reserve(_ context.Context, key string, gap time.Duration, now time.Time) (bool, time.Time, error) {
	if gap <= 0 {
		return true, time.Time{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gl, found := s.limiters[key]
	if !found || gl.gap != gap {
		gl = &gapLimiter{gap: gap, limiter: rate.NewLimiter(rate.Every(gap), 1)}
		s.limiters[key] = gl
	}

	res := gl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, now.Add(gap), nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, now.Add(delay), nil
	}
	return true, time.Time{}, nil
}

// A marker key lives for exactly one gap; its remaining TTL is the wait.
var reserveScript = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[1]) then
  return -1
end
return redis.call('PTTL', KEYS[1])
`)

// RedisSpacer shares the gap across engine instances.
type RedisSpacer struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSpacer constructs a RedisSpacer.
func NewRedisSpacer(client redis.UniversalClient, prefix string) *RedisSpacer {
	if prefix == "" {
		prefix = "leadengine"
	}
	return &RedisSpacer{client: client, prefix: prefix}
}

// Reserve admits one call when no other instance was admitted within gap.
func (s *RedisSpacer) Reserve(ctx context.Context, key string, gap time.Duration, now time.Time) (bool, time.Time, error) {
	if gap <= 0 {
		return true, time.Time{}, nil
	}
	ms := gap.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	wait, err := reserveScript.Run(ctx, s.client, []string{s.key(key)}, ms).Int64()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("spacer reserve: %w", err)
	}
	switch {
	case wait == -1:
		return true, time.Time{}, nil
	case wait < 0:
		// Marker vanished between SET and PTTL.
		return false, now, nil
	default:
		return false, now.Add(time.Duration(wait) * time.Millisecond), nil
	}
}

func (s *RedisSpacer) key(dialingRuleID string) string {
	return fmt.Sprintf("%s:dialing:%s:gap", s.prefix, dialingRuleID)
}

var (
	_ Spacer = (*LocalSpacer)(nil)
	_ Spacer = (*RedisSpacer)(nil)
)
