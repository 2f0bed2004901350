// Package genstore keeps per-key write generations. The cache snapshots a
// key's generation before recomputing it and drops the write if a delete
// bumped the generation in the meantime.
package genstore

import (
	"context"
)

// Store is where generations live. Use Local for a single process, or Redis
// when deletes in one process must fence writers in another.
type Store interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	Close(ctx context.Context) error
}
