package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DeliveryTracker implements ports.DeliveryTracker using Redis SET NX.
// It only observes redeliveries; order state is the source of truth.
type DeliveryTracker struct {
	client *goredis.Client
	prefix string
}

// NewDeliveryTracker creates a new Redis-backed delivery tracker.
func NewDeliveryTracker(client *goredis.Client) *DeliveryTracker {
	return &DeliveryTracker{
		client: client,
		prefix: keyspace + "webhook:chapa:",
	}
}

// MarkSeen atomically records a (trxRef, status) delivery.
// Returns true if this is the first delivery, false for a redelivery.
func (t *DeliveryTracker) MarkSeen(ctx context.Context, trxRef, status string, ttl time.Duration) (bool, error) {
	key := t.prefix + trxRef + ":" + strings.ToLower(status)
	result, err := t.client.SetArgs(ctx, key, time.Now().Unix(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis delivery mark: %w", err)
	}
	return result == "OK", nil
}
