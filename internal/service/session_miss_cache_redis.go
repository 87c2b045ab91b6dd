package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisSessionMissCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionMissCache(client redis.UniversalClient, prefix string) *RedisSessionMissCache {
	if prefix == "" {
		prefix = "session_miss"
	}
	return &RedisSessionMissCache{client: client, prefix: prefix}
}

func (c *RedisSessionMissCache) Contains(ctx context.Context, tokenHash string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	err := c.client.Get(ctx, c.key(tokenHash)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisSessionMissCache) Add(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(tokenHash), "1", ttl).Err()
}

func (c *RedisSessionMissCache) key(tokenHash string) string {
	return c.prefix + ":" + tokenHash
}
