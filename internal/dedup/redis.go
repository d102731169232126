// Package dedup provides a redis-backed seen-cache used as a fast path
// in front of the store's authoritative interaction uniqueness check.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "habitpulse:interaction:"

// RedisCache suppresses interaction replays cheaply. Entries expire
// after the retention window; the database unique index remains the
// authority for older replays.
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisCache(client *redis.Client, retention time.Duration) *RedisCache {
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return &RedisCache{client: client, retention: retention}
}

func (c *RedisCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Mark(ctx context.Context, key string) error {
	return c.client.Set(ctx, keyPrefix+key, 1, c.retention).Err()
}
