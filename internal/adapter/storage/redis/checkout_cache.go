package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CheckoutCache implements ports.CheckoutCache using Redis.
type CheckoutCache struct {
	client *goredis.Client
	prefix string
}

// NewCheckoutCache creates a new Redis-backed checkout cache.
func NewCheckoutCache(client *goredis.Client) *CheckoutCache {
	return &CheckoutCache{
		client: client,
		prefix: keyspace + "checkout:",
	}
}

// Get retrieves a cached checkout response.
// Returns nil, nil if the key does not exist.
func (c *CheckoutCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis checkout get: %w", err)
	}
	return val, nil
}

// Set stores a checkout response with TTL.
func (c *CheckoutCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis checkout set: %w", err)
	}
	return nil
}
