package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has already expired.
var ErrNotFound = errors.New("cache: key not found")

// ErrStoreUnavailable wraps transport-level failures talking to the store.
// Callers check it with errors.Is and treat it as fatal for the in-flight
// request.
var ErrStoreUnavailable = errors.New("cache: store unavailable")

// Store is the ephemeral state store the sync core runs on: keys with TTL,
// conditional set for locks, membership sets, prefix scans and a bounded
// list per key. Redis is the deployment implementation; memoryStore covers
// single-instance deployments and tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets key only if it does not exist. Returns true when the key
	// was set by this call.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Keys returns every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	RPush(ctx context.Context, key string, values ...[]byte) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
}
