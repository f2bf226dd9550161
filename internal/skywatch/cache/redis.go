package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection options for the Redis-backed store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Defaults to localhost:6379.
	Addr string
	// Password is the optional AUTH password.
	Password string
	// DB is the logical database number.
	DB int
}

// Redis is the Redis-backed Store implementation. Values are read and
// written as raw bytes, so payloads that are not valid text round-trip
// unchanged.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis store. The underlying client maintains a
// connection pool; a connection is leased per command and returned
// unconditionally, whether the command succeeds or fails.
func NewRedis(cfg RedisConfig) *Redis {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Ping verifies the server is reachable. Intended for a startup check.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the raw bytes stored under key, or present=false when the key
// does not exist.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return val, true, nil
}

// SetWithTTL overwrites key with value and resets its expiry to ttl from now.
func (r *Redis) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
