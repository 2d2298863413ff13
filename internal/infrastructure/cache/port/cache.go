package port

import (
	"context"
	"time"
)

// ErrMiss signals that a key is absent. Callers use it to fall through to the
// authoritative store; any other error is a transport or server problem.
var ErrMiss = errMiss{}

type errMiss struct{}

func (errMiss) Error() string { return "cache: miss" }

// Cache is the key-value cache surface the application depends on. Values are
// plain strings; serialization stays with the caller. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get returns the value at key, or ErrMiss when the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. A zero or negative ttl persists the key until
	// eviction.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del removes the given keys and reports how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	Close() error
}
