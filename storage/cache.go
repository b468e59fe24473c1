package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

type snapshotBackend interface {
	FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error)
}

// Cache wraps a Storage instance with Redis-backed caching for the board
// snapshot, the one read every client issues on load and on every
// failure-recovery refresh.
type Cache struct {
	*Storage
	base  snapshotBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base snapshotBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	if snap, ok := c.loadFromCache(ctx, boardID); ok {
		return snap, nil
	}
	snap, err := c.base.FetchBoardSnapshot(ctx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	c.store(ctx, boardID, snap)
	return snap, nil
}

// EvictBoard drops the cached snapshot after any board mutation.
func (c *Cache) EvictBoard(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, snapshotCacheKey(boardID)).Result()
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) (domain.Snapshot, bool) {
	if c.redis == nil {
		return domain.Snapshot{}, false
	}
	data, err := c.redis.Get(ctx, snapshotCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, snapshotCacheKey(boardID)).Err()
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = c.redis.Del(ctx, snapshotCacheKey(boardID)).Err()
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (c *Cache) store(ctx context.Context, boardID string, snap domain.Snapshot) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, snapshotCacheKey(boardID), data, c.ttl).Err()
}

func snapshotCacheKey(boardID string) string {
	return "snapshot:" + boardID
}
