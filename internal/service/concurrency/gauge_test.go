package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGauge(t *testing.T) *RedisGauge {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGauge(client, "test", time.Minute)
}

func TestGaugesRespectLimit(t *testing.T) {
	ctx := context.Background()
	gauges := map[string]Gauge{
		"local": NewLocalGauge(),
		"redis": newRedisGauge(t),
	}
	for name, g := range gauges {
		t.Run(name, func(t *testing.T) {
			ok, err := g.TryAcquire(ctx, "rule-1", 2)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = g.TryAcquire(ctx, "rule-1", 2)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = g.TryAcquire(ctx, "rule-1", 2)
			require.NoError(t, err)
			assert.False(t, ok, "third acquire must be refused")

			n, err := g.InFlight(ctx, "rule-1")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			other, err := g.InFlight(ctx, "rule-2")
			require.NoError(t, err)
			assert.Zero(t, other)

			require.NoError(t, g.Release(ctx, "rule-1"))
			ok, err = g.TryAcquire(ctx, "rule-1", 2)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestGaugesReleaseNeverNegative(t *testing.T) {
	ctx := context.Background()
	for name, g := range map[string]Gauge{"local": NewLocalGauge(), "redis": newRedisGauge(t)} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, g.Release(ctx, "idle"))
			require.NoError(t, g.Release(ctx, "idle"))
			n, err := g.InFlight(ctx, "idle")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestGaugeZeroLimitRefuses(t *testing.T) {
	ok, err := NewLocalGauge().TryAcquire(context.Background(), "rule", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalGaugeConcurrentAcquire(t *testing.T) {
	const limit = 3
	g := NewLocalGauge()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		current atomic.Int64
		peak    atomic.Int64
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ok, _ := g.TryAcquire(ctx, "rule", limit)
				if !ok {
					continue
				}
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				current.Add(-1)
				_ = g.Release(ctx, "rule")
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	n, _ := g.InFlight(ctx, "rule")
	assert.Zero(t, n)
}
