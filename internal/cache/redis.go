package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores values as plain Redis strings.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend parses uri (redis://host:port/db) and returns a pooled backend.
func NewRedisBackend(uri string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	return NewRedisBackendFromClient(redis.NewClient(opts)), nil
}

// NewRedisBackendFromClient shares an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get returns the stored bytes; a missing or expired key is a miss, not an error.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set writes value with a relative ttl. A zero ttl keeps the key until deleted.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// SetAt writes the value and its absolute expiry in one transaction.
func (b *RedisBackend) SetAt(ctx context.Context, key string, value []byte, at time.Time) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, 0)
		pipe.ExpireAt(ctx, key, at)
		return nil
	})
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// Close releases the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
