package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/domu/internal/tracing"
)

// DefaultRedisPrefix namespaces registry keys in a shared Redis database.
const DefaultRedisPrefix = "domu:kv:"

// Redis stores values as plain Redis strings under a key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreGet, key)
	defer func() { end(err) }()

	value, err = r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store. Values never expire.
func (r *Redis) Set(ctx context.Context, key, value string) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreSet, key)
	defer func() { end(err) }()

	if err = r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kvstore: redis set %s: %w", key, err)
	}
	return nil
}
