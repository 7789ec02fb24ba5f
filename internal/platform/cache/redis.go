// Package cache provides the Redis client and a small JSON TTL cache for
// read-heavy report endpoints.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// ErrMiss indicates the key is absent or expired.
var ErrMiss = errors.New("platform/cache: miss")

// JSONCache stores marshaled values under a shared TTL. Used for derived
// reports where a stale read within the TTL is acceptable.
type JSONCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJSONCache builds a JSONCache over an existing client.
func NewJSONCache(client *redis.Client, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, ttl: ttl}
}

// Get unmarshals the cached value into target. Returns ErrMiss when absent.
func (c *JSONCache) Get(ctx context.Context, key string, target any) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("platform/cache: get %s: %w", key, err)
	}
	return json.Unmarshal(raw, target)
}

// Set marshals and stores the value under the cache TTL.
func (c *JSONCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("platform/cache: marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops the key so the next read recomputes.
func (c *JSONCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
