package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "dedup:msg:"

// Client is the slice of go-redis the guard needs. *redis.Client satisfies it.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Guard detects duplicate submissions with an atomic set-if-absent.
// The cache is not a source of truth: on any cache error the guard
// reports "not duplicate" and lets the store's unique index backstop it.
type Guard struct {
	rdb Client
	ttl time.Duration
	log *zap.SugaredLogger
}

func NewGuard(rdb Client, ttl time.Duration, log *zap.SugaredLogger) *Guard {
	return &Guard{rdb: rdb, ttl: ttl, log: log}
}

// IsDuplicate marks key as seen and reports whether it was seen before.
func (g *Guard) IsDuplicate(ctx context.Context, key string) bool {
	ok, err := g.rdb.SetNX(ctx, keyPrefix+key, "1", g.ttl).Result()
	if err != nil {
		g.log.Warnw("dedup cache unavailable, treating as not duplicate", "key", key, "err", err)
		return false
	}
	return !ok
}

// Remove drops a stale entry so the key can be reprocessed.
func (g *Guard) Remove(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, keyPrefix+key).Err()
}

// MarkProcessed re-arms the entry after a successful reprocess, resetting the TTL.
func (g *Guard) MarkProcessed(ctx context.Context, key string) error {
	return g.rdb.Set(ctx, keyPrefix+key, "1", g.ttl).Err()
}
