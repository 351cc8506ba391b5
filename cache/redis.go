package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var _ StatusCache = (*Redis)(nil)

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithKeyPrefix prefixes every key, for sharing one Redis between
// environments.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// Redis stores entries as hashes with an expiry. The caller owns the
// Redis client lifecycle.
type Redis struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed status cache.
func NewRedis(client goredis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: DefaultTTL}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ping verifies the Redis connection is alive.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetStatus writes the hash and its expiry in one transaction.
func (r *Redis) SetStatus(ctx context.Context, key string, e Entry) error {
	k := r.prefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, k, map[string]any{
			"status":     e.Status,
			"reason":     e.Reason,
			"updated_at": e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// GetStatus reads the hash under key.
func (r *Redis) GetStatus(ctx context.Context, key string) (*Entry, error) {
	vals, err := r.client.HGetAll(ctx, r.prefix+key).Result()
	if errors.Is(err, goredis.Nil) || (err == nil && len(vals) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %q: %w", key, err)
	}

	e := &Entry{Status: vals["status"], Reason: vals["reason"]}
	if ts := vals["updated_at"]; ts != "" {
		t, parseErr := time.Parse(time.RFC3339Nano, ts)
		if parseErr != nil {
			return nil, fmt.Errorf("cache: get %q: parse updated_at: %w", key, parseErr)
		}
		e.UpdatedAt = t
	}
	return e, nil
}
