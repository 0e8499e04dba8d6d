package ledger

import (
	"context"
	"time"
)

// Backend is the storage technology behind the ledger abstraction: either a
// real S3-compatible object store (STORAGE_MODE=ledger) or an in-process map
// (STORAGE_MODE=memory). Pool wraps whichever Backend is configured; the
// pool's job is concurrency and lifecycle, the backend's job is durability.
type Backend interface {
	// Create persists a single entity and returns its assigned key.
	Create(ctx context.Context, entity Entity) (string, error)

	// CreateBatch persists multiple entities in one logical transaction and
	// returns one key per entity, in the same order as the input.
	CreateBatch(ctx context.Context, entities []Entity) ([]string, error)

	// Get fetches a single entity by its assigned key.
	Get(ctx context.Context, key string) (Entity, error)

	// Query drains attribute-indexed entities page by page.
	Query(ctx context.Context, q AttributeQuery) (Page, error)

	// BlockDuration returns the backend's current seconds-per-block, used by
	// the pool to compute expiration blocks from a BTL in days.
	BlockDuration(ctx context.Context) (time.Duration, error)

	// CurrentBlock returns the backend's current block height.
	CurrentBlock(ctx context.Context) (int64, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Credentialed reports whether this backend instance holds write
	// credentials; only credentialed backends may populate the write pool.
	Credentialed() bool
}
