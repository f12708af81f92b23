package thread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces thread keys in a shared Redis.
const RedisKeyPrefix = "cloudtrail:thread:"

// RedisStore keeps thread handles in Redis with native key expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the handle stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	handle, err := s.client.Get(ctx, RedisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get thread from Redis: %w", err)
	}
	return handle, true, nil
}

// Put stores the handle with SET ... EX ttl.
func (s *RedisStore) Put(ctx context.Context, key, handle string, ttl time.Duration) error {
	if err := s.client.Set(ctx, RedisKeyPrefix+key, handle, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set thread in Redis: %w", err)
	}
	return nil
}
