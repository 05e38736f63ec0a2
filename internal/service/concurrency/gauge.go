package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gauge tracks in-flight attempts per dialing rule. TryAcquire and Release
// must be atomic with respect to each other so that the count never exceeds
// the limit passed to TryAcquire.
type Gauge interface {
	TryAcquire(ctx context.Context, key string, limit int) (bool, error)
	Release(ctx context.Context, key string) error
	InFlight(ctx context.Context, key string) (int, error)
}

// LocalGauge is a process-local Gauge backed by one atomic counter per key.
type LocalGauge struct {
	counters sync.Map // key -> *atomic.Int64
}

// NewLocalGauge constructs an empty LocalGauge.
func NewLocalGauge() *LocalGauge {
	return &LocalGauge{}
}

func (g *LocalGauge) counter(key string) *atomic.Int64 {
	if c, ok := g.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := g.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// TryAcquire increments the counter for key if it is below limit.
func (g *LocalGauge) TryAcquire(_ context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	c := g.counter(key)
	for {
		cur := c.Load()
		if cur >= int64(limit) {
			return false, nil
		}
		if c.CompareAndSwap(cur, cur+1) {
			return true, nil
		}
	}
}

// Release decrements the counter for key, never below zero.
func (g *LocalGauge) Release(_ context.Context, key string) error {
	c := g.counter(key)
	for {
		cur := c.Load()
		if cur <= 0 {
			return nil
		}
		if c.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// InFlight returns the current count for key.
func (g *LocalGauge) InFlight(_ context.Context, key string) (int, error) {
	return int(g.counter(key).Load()), nil
}

var _ Gauge = (*LocalGauge)(nil)
