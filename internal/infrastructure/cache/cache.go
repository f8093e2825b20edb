// Package cache wraps redis for the replay fast-path and rate limit state.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vestra-platform/vestra_service/internal/infrastructure/config"
)

// Cache wraps a redis client
type Cache struct {
	client *redis.Client
}

// NewCache connects to redis and verifies connectivity
func NewCache(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// Close releases the redis connection pool
func (c *Cache) Close() error {
	return c.client.Close()
}

const paymentRefPrefix = "payref:"

// Seen reports whether a payment reference was recently applied
func (c *Cache) Seen(ctx context.Context, externalRef string) (bool, error) {
	n, err := c.client.Exists(ctx, paymentRefPrefix+externalRef).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check payment reference: %w", err)
	}
	return n > 0, nil
}

// Remember marks a payment reference as applied for the given ttl
func (c *Cache) Remember(ctx context.Context, externalRef string, ttl time.Duration) error {
	if err := c.client.Set(ctx, paymentRefPrefix+externalRef, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache payment reference: %w", err)
	}
	return nil
}

// IncrementWindow bumps a fixed-window counter and returns the new count.
// The window ttl is only set when the counter is created.
func (c *Cache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate window: %w", err)
	}
	return incr.Val(), nil
}
