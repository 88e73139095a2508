package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

// RedisStore persists values as plain redis strings under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. The store owns the client from now on.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}

	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return &Error{Op: "delete", Err: err}
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
