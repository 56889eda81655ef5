// ABOUTME: Redis-backed refresh token store
// ABOUTME: Maps Set/Get/Delete onto SET-with-TTL/GET/DEL under a key prefix

package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis instance. TTL enforcement and per-key
// atomicity come from Redis itself, so this works across service restarts
// and multiple readers.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store using the given client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		prefix: "hsauth:rft:",
	}
}

// Set records the current refresh token for the subject with the given TTL.
func (r *Redis) Set(ctx context.Context, did, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+did, token, ttl).Err(); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// Get returns the live refresh token for the subject, or ErrNotFound when
// the key is absent or its TTL has elapsed.
func (r *Redis) Get(ctx context.Context, did string) (string, error) {
	token, err := r.client.Get(ctx, r.prefix+did).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetching refresh token: %w", err)
	}
	return token, nil
}

// Delete removes the subject's refresh token. Deleting an absent key is not an error.
func (r *Redis) Delete(ctx context.Context, did string) error {
	if err := r.client.Del(ctx, r.prefix+did).Err(); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}
