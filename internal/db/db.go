package db

import (
	"context"
	"time"
)

// Store is the key-value facade used by the embedding cache and health checks.
type Store interface {
	Pinger
	KVStore
	CounterStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CounterStore provides integer counters with expiry.
type CounterStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	// Expire sets a TTL. With nx it only applies when the key has none yet.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
