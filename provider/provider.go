// Package provider defines the storage abstraction used by rescache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key. If a store performs
// internal transforms (e.g., expiry headers), they MUST be fully reversed.
//
// The keyspaces "<prefix>__cache_lock:" and "<prefix>__cache_probe:" are owned by
// rescache. External code MUST NOT write values under these prefixes.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means "no expiry" where the
	// store supports it. Returns ok=false when the store rejected the write.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Adder is implemented by stores with a set-if-absent primitive.
// Add returns true only when the key did not exist and value was stored.
type Adder interface {
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Counter is implemented by stores with native atomic counters.
// A missing key counts from zero. Counter keys hold decimal ASCII integers.
type Counter interface {
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
}

// Scanner is implemented by stores that can enumerate keys without blocking
// the store. match uses glob syntax ('*', '?', '[...]').
// fn is called once per matching key; returning an error stops the scan.
type Scanner interface {
	Scan(ctx context.Context, match string, fn func(key string) error) error
}
