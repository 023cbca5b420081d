// Package cache stores posts query results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daap14/hafgate/internal/posts"
)

const keyPrefix = "hafgate:"

// RedisCache implements posts.Cache on Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the cached result for key. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (*posts.Result, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}

	var res posts.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &res, true, nil
}

// Set stores res under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, res *posts.Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
