// Package cache provides a time-boxed read-through cache for upstream
// lookups. Values live in a pluggable Store: in-memory for a single process
// or Redis when several instances should share results.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/i474232898/air-quality-gateway/internal/metrics"
)

// DefaultTTL is how long a fetched value is served before it is refetched.
const DefaultTTL = 5 * time.Minute

// Entry is one stored value and the moment it was fetched.
// Entries are replaced on refresh, never modified in place.
type Entry[T any] struct {
	Value    T         `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// Store is the contract cache backends must satisfy.
// Implementations must be safe for concurrent use.
type Store[T any] interface {
	// Get returns the entry for key. ok is false when nothing is stored.
	Get(ctx context.Context, key string) (entry Entry[T], ok bool, err error)

	// Set stores the entry under key, replacing any previous one.
	Set(ctx context.Context, key string, entry Entry[T]) error

	// Reset removes every entry.
	Reset(ctx context.Context) error
}

// TTL serves values from a Store while they are younger than the TTL and
// calls the producer otherwise. Concurrent misses for the same key are not
// collapsed; the last successful fetch wins.
type TTL[T any] struct {
	name  string
	store Store[T]
	ttl   time.Duration
	now   func() time.Time
}

// NewTTL builds a TTL cache. name labels metrics and logs. A nil store
// defaults to an in-memory one; a non-positive ttl defaults to DefaultTTL.
func NewTTL[T any](name string, store Store[T], ttl time.Duration) *TTL[T] {
	if store == nil {
		store = NewMemory[T]()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[T]{
		name:  name,
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the time source. Used by tests to step past the TTL.
func (c *TTL[T]) WithClock(now func() time.Time) *TTL[T] {
	c.now = now
	return c
}

// Fetch returns the cached value for key when it is still fresh, otherwise
// runs producer and stores its result. A failed producer stores nothing, so
// the next call fetches again.
func (c *TTL[T]) Fetch(ctx context.Context, key string, producer func(context.Context) (T, error)) (T, error) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		// A broken backend degrades to a miss.
		slog.Warn("cache read failed", "cache", c.name, "key", key, "error", err)
		ok = false
	}
	if ok && c.now().Sub(entry.StoredAt) < c.ttl {
		metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
		return entry.Value, nil
	}
	metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()

	return c.produce(ctx, key, producer)
}

// Refresh runs producer regardless of what is stored and replaces the entry
// on success. A failure leaves the existing entry in place.
func (c *TTL[T]) Refresh(ctx context.Context, key string, producer func(context.Context) (T, error)) (T, error) {
	metrics.CacheLookups.WithLabelValues(c.name, "refresh").Inc()
	return c.produce(ctx, key, producer)
}

func (c *TTL[T]) produce(ctx context.Context, key string, producer func(context.Context) (T, error)) (T, error) {
	value, err := producer(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.store.Set(ctx, key, Entry[T]{Value: value, StoredAt: c.now()}); err != nil {
		slog.Warn("cache write failed", "cache", c.name, "key", key, "error", err)
	}
	return value, nil
}

// Reset drops every cached entry.
func (c *TTL[T]) Reset(ctx context.Context) error {
	return c.store.Reset(ctx)
}
