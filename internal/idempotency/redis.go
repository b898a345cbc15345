package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces idempotency keys in a shared Redis database.
const DefaultRedisPrefix = "domu:idem:"

// RedisRepository stores records as JSON strings that expire after ttl, so
// replays are shared across every API instance using the same Redis.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRepository creates a Redis-backed repository. A ttl <= 0 uses
// DefaultExpiry.
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = DefaultExpiry
	}
	return &RedisRepository{client: client, prefix: DefaultRedisPrefix, ttl: ttl}
}

// Get implements Repository.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: redis get: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return &record, nil
}

// Store implements Repository using SET NX, so concurrent first requests
// store exactly one response.
func (r *RedisRepository) Store(ctx context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.prefix+record.Key, data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("idempotency: redis setnx: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// DeleteOlderThan implements Repository. Redis expires records on its own, so
// there is nothing to sweep.
func (r *RedisRepository) DeleteOlderThan(context.Context, time.Duration) (int64, error) {
	return 0, nil
}
