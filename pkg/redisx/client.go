// Package redisx owns the process-wide Redis client the idempotency store
// and the event bus's outbound sink share.
package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init initializes the Redis client and verifies connectivity.
func Init(url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	if password != "" {
		opts.Password = password
	}
	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// SetClient sets the Redis client (used for testing with miniredis).
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client.
func GetClient() *redis.Client {
	return client
}
