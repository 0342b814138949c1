package attempts

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker stores each attempt as a key with TTL = window, so expiry is
// Redis' job and several coordinator replicas share one window.
type RedisTracker struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisTracker creates a Redis-backed tracker. Prefix may be empty.
func NewRedisTracker(client *redis.Client, prefix string, window time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "notarize:attempt:"
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisTracker{client: client, prefix: prefix, window: window}
}

func (r *RedisTracker) key(contentAddress, notary string) string {
	return r.prefix + key(contentAddress, notary)
}

func (r *RedisTracker) Record(ctx context.Context, contentAddress, notary string) (bool, error) {
	set, err := r.client.SetNX(ctx, r.key(contentAddress, notary), time.Now().UTC().Format(time.RFC3339Nano), r.window).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (r *RedisTracker) Forget(ctx context.Context, contentAddress, notary string) error {
	return r.client.Del(ctx, r.key(contentAddress, notary)).Err()
}
