package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	s := NewSet()

	assert.True(t, s.TryAcquire(ctx, "a"))
	assert.False(t, s.TryAcquire(ctx, "a"))
	assert.True(t, s.TryAcquire(ctx, "b"))
	assert.Equal(t, 2, s.Len())

	s.Release(ctx, "a")
	assert.False(t, s.Contains("a"))
	assert.True(t, s.TryAcquire(ctx, "a"))

	s.Release(ctx, "missing")
	assert.Equal(t, 2, s.Len())
}

func TestSet_ConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewSet()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire(ctx, "rec") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisGuard_SharedBetweenProcesses(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	a := NewRedisGuard(client, "proc-a", time.Minute, nil)
	b := NewRedisGuard(client, "proc-b", time.Minute, nil)

	require.True(t, a.TryAcquire(ctx, "rec-1"))
	assert.False(t, a.TryAcquire(ctx, "rec-1"))
	assert.False(t, b.TryAcquire(ctx, "rec-1"))

	// b must not be able to drop a's lease.
	b.Release(ctx, "rec-1")
	assert.False(t, b.TryAcquire(ctx, "rec-1"))

	a.Release(ctx, "rec-1")
	assert.True(t, b.TryAcquire(ctx, "rec-1"))
}

func TestRedisGuard_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	a := NewRedisGuard(client, "proc-a", time.Minute, nil)
	b := NewRedisGuard(client, "proc-b", time.Minute, nil)

	require.True(t, a.TryAcquire(ctx, "rec-1"))
	mr.FastForward(2 * time.Minute)
	assert.True(t, b.TryAcquire(ctx, "rec-1"))
}

func TestRedisGuard_FallsBackToLocalWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	g := NewRedisGuard(client, "proc-a", time.Minute, nil)
	mr.Close()

	assert.True(t, g.TryAcquire(ctx, "rec-1"))
	assert.False(t, g.TryAcquire(ctx, "rec-1"))
	g.Release(ctx, "rec-1")
	assert.True(t, g.TryAcquire(ctx, "rec-1"))
}
