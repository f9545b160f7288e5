package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by this service.
const DefaultRedisPrefix = "aqi-gateway"

// Connect parses a Redis URL (e.g. "redis://:password@host:6379/0") and
// verifies the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Redis is a Store backed by Redis, for deployments with several gateway
// instances behind a load balancer. Keys expire on the Redis side after
// the cache TTL so abandoned signatures do not accumulate.
type Redis[T any] struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedis creates a Redis store. prefix separates caches sharing a client.
func NewRedis[T any](client *redis.Client, prefix string, expiry time.Duration) *Redis[T] {
	if expiry <= 0 {
		expiry = DefaultTTL
	}
	slog.Info("redis cache store ready", "prefix", prefix, "expiry", expiry)
	return &Redis[T]{
		client: client,
		prefix: prefix,
		expiry: expiry,
	}
}

// key hashes the signature so free-text search queries map to bounded keys.
func (r *Redis[T]) key(signature string) string {
	return r.prefix + ":" + strconv.FormatUint(xxhash.Sum64String(signature), 16)
}

// Get retrieves and decodes an entry.
func (r *Redis[T]) Get(ctx context.Context, key string) (Entry[T], bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry[T]{}, false, nil
		}
		return Entry[T]{}, false, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry[T]{}, false, fmt.Errorf("failed to parse cache entry from redis: %w", err)
	}
	return entry, true, nil
}

// Set encodes and stores an entry, replacing any previous value.
func (r *Redis[T]) Set(ctx context.Context, key string, entry Entry[T]) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.expiry).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

// Reset deletes every key under this store's prefix.
func (r *Redis[T]) Reset(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete redis keys: %w", err)
	}
	return nil
}
