// Package memory implements ledger.Backend as an in-process map, used when
// STORAGE_MODE=memory. It has no persistence and no real block production;
// CurrentBlock advances a synthetic counter so expiration-block arithmetic
// still behaves sensibly in tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onchainfs/ledgerfs/pkg/ledger"
)

// Backend is a map-backed ledger.Backend. It is always "credentialed" since
// there is no real write authority to withhold in memory mode.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]ledger.Entity
	seq     atomic.Int64
	block   atomic.Int64

	blockDuration time.Duration
}

// New returns a ready Backend with a synthetic 10-second block duration.
func New() *Backend {
	return &Backend{
		entries:       make(map[string]ledger.Entity),
		blockDuration: 10 * time.Second,
	}
}

func (b *Backend) nextKey() string {
	return fmt.Sprintf("mem-%d", b.seq.Add(1))
}

// Create stores entity under a freshly minted key.
func (b *Backend) Create(ctx context.Context, entity ledger.Entity) (string, error) {
	key := b.nextKey()
	entity.Key = key
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}

	b.mu.Lock()
	b.entries[key] = entity
	b.mu.Unlock()

	b.block.Add(1)
	return key, nil
}

// CreateBatch stores every entity, each under its own key, in input order.
func (b *Backend) CreateBatch(ctx context.Context, entities []ledger.Entity) ([]string, error) {
	keys := make([]string, len(entities))
	for i, e := range entities {
		key, err := b.Create(ctx, e)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// Get fetches entity by key, or a zero Entity and a plain "not found" error
// if absent.
func (b *Backend) Get(ctx context.Context, key string) (ledger.Entity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[key]
	if !ok {
		return ledger.Entity{}, fmt.Errorf("memory backend: key %q not found", key)
	}
	return e, nil
}

// Query scans every stored entity of q.Type whose string attributes match
// q.Equals, sorted by key for stable pagination. Cursor is the key to resume
// after.
func (b *Backend) Query(ctx context.Context, q ledger.AttributeQuery) (ledger.Page, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []ledger.Entity
	for _, e := range b.entries {
		if e.Type != q.Type {
			continue
		}
		if matchesAll(e.StringAttrs, q.Equals) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })

	start := 0
	if q.Cursor != "" {
		for i, e := range matched {
			if e.Key > q.Cursor {
				start = i
				break
			}
			start = i + 1
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	if start > len(matched) {
		start = len(matched)
	}

	page := ledger.Page{Entities: matched[start:end]}
	if end < len(matched) {
		page.NextCursor = matched[end-1].Key
	}
	return page, nil
}

func matchesAll(attrs, equals map[string]string) bool {
	for k, v := range equals {
		if attrs[k] != v {
			return false
		}
	}
	return true
}

// BlockDuration returns the synthetic 10-second block duration.
func (b *Backend) BlockDuration(ctx context.Context) (time.Duration, error) {
	return b.blockDuration, nil
}

// CurrentBlock returns the synthetic block counter, advanced once per Create.
func (b *Backend) CurrentBlock(ctx context.Context) (int64, error) {
	return b.block.Load(), nil
}

// HealthCheck always succeeds; there is no external dependency to probe.
func (b *Backend) HealthCheck(ctx context.Context) error {
	return nil
}

// Credentialed is always true in memory mode.
func (b *Backend) Credentialed() bool {
	return true
}

// SetCurrentBlock overrides the synthetic block counter, for tests that need
// to control expiration-block arithmetic precisely.
func (b *Backend) SetCurrentBlock(block int64) {
	b.block.Store(block)
}
