package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis adapts a *redis.Client to the Cache interface. Used whenever a Redis DSN is configured,
// sharing process-wide TTL caches across multiple control-plane instances — the in-memory
// Memory cache only serves a single process.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}
