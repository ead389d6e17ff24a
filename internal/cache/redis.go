package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyIndexPrefix = "keygate"

// RedisKeyIndex stores key id to user id mappings in Redis so every
// process behind the load balancer shares one index.
type RedisKeyIndex struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisKeyIndex creates a Redis-backed index. A zero ttl keeps entries until evicted.
func NewRedisKeyIndex(client redis.UniversalClient, ttl time.Duration) *RedisKeyIndex {
	return &RedisKeyIndex{
		redis:  client,
		prefix: keyIndexPrefix,
		ttl:    ttl,
	}
}

func (c *RedisKeyIndex) key(namespace, keyID string) string {
	return c.prefix + ":" + namespace + ":" + keyID
}

func (c *RedisKeyIndex) Get(ctx context.Context, namespace, keyID string) (string, bool, error) {
	userID, err := c.redis.Get(ctx, c.key(namespace, keyID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("key index get: %w", err)
	}
	return userID, true, nil
}

func (c *RedisKeyIndex) Set(ctx context.Context, namespace, keyID, userID string) error {
	if err := c.redis.Set(ctx, c.key(namespace, keyID), userID, c.ttl).Err(); err != nil {
		return fmt.Errorf("key index set: %w", err)
	}
	return nil
}

// Ping satisfies the health probe used by the /health route
func (c *RedisKeyIndex) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
