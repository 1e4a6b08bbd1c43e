package domain

import (
	"context"
	"time"
)

// Cache caches window aggregates and counters in front of the store.
// Two-phase setups layer a local LRU under Redis. All methods require
// tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a raw value. Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a raw value with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetAggregate retrieves a cached window aggregate snapshot.
	// Returns nil, nil on miss.
	GetAggregate(ctx context.Context, tenantID string, key string) (*AggregateResult, error)

	// SetAggregate caches a window aggregate snapshot.
	SetAggregate(ctx context.Context, tenantID string, key string, agg *AggregateResult, ttl time.Duration) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings: check local first, then Redis.
	EnableTwoPhase bool

	// AggregateTTL bounds how long aggregate snapshots may be served
	// from cache before recomputation.
	AggregateTTL time.Duration
}
