// Package rediskv implements streaming.KV on top of Redis strings and
// counters.
package rediskv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clduab11/pricehawk/internal/streaming"
)

// KV is a streaming.KV backed by a Redis client.
type KV struct {
	rdb *redis.Client
}

// New wraps an existing redis.Client as a streaming.KV.
func New(rdb *redis.Client) *KV {
	return &KV{rdb: rdb}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := k.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent uses Redis SETNX semantics; the TTL is applied only when the
// write actually wins the race, matching the dedup-key contract.
func (k *KV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := k.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (k *KV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := k.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if n == 1 && ttl > 0 {
		k.rdb.Expire(ctx, key, ttl)
	}
	return n, nil
}

func (k *KV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := k.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (k *KV) Del(ctx context.Context, key string) error {
	if err := k.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (k *KV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := k.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return out, nil
}

var _ streaming.KV = (*KV)(nil)
