package inflight

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "inflight:"
	// DefaultLeaseTTL bounds how long a crashed holder can block a record.
	DefaultLeaseTTL = 2 * time.Hour
)

// RedisGuard shares the in-flight marks between processes through Redis keys with a TTL.
// When Redis is unreachable it falls back to the local set so a single process keeps working.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
	local  *Set
	logger *zap.Logger
}

// NewRedisGuard creates a Redis-backed guard. owner identifies this process in the lease value.
func NewRedisGuard(client *redis.Client, owner string, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGuard{client: client, ttl: ttl, owner: owner, local: NewSet(), logger: logger}
}

// TryAcquire implements Guard.
func (g *RedisGuard) TryAcquire(ctx context.Context, id string) bool {
	if !g.local.TryAcquire(ctx, id) {
		return false
	}
	ok, err := g.client.SetNX(ctx, keyPrefix+id, g.owner, g.ttl).Result()
	if err != nil {
		g.logger.Warn("redis lease unavailable, using local guard", zap.String("id", id), zap.Error(err))
		return true
	}
	if !ok {
		g.local.Release(ctx, id)
	}
	return ok
}

// releaseScript deletes the lease only if this process still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release implements Guard.
func (g *RedisGuard) Release(ctx context.Context, id string) {
	defer g.local.Release(ctx, id)
	if err := releaseScript.Run(ctx, g.client, []string{keyPrefix + id}, g.owner).Err(); err != nil && err != redis.Nil {
		g.logger.Warn("redis lease release failed", zap.String("id", id), zap.Error(err))
	}
}
