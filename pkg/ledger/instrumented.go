package ledger

import (
	"context"
	"time"

	"github.com/onchainfs/ledgerfs/pkg/metrics"
)

// instrumentedBackend wraps a Backend with BackendMetrics observations,
// independent of the pool's own acquire/hold bookkeeping. Used when metrics
// are enabled; a bare Backend is used otherwise so there is zero overhead.
type instrumentedBackend struct {
	Backend
	metrics metrics.BackendMetrics
}

// Instrument wraps backend with BackendMetrics observations. Passing a nil
// m is equivalent to not instrumenting at all.
func Instrument(backend Backend, m metrics.BackendMetrics) Backend {
	if m == nil {
		return backend
	}
	return &instrumentedBackend{Backend: backend, metrics: m}
}

func (b *instrumentedBackend) Create(ctx context.Context, entity Entity) (string, error) {
	start := time.Now()
	key, err := b.Backend.Create(ctx, entity)
	b.metrics.ObserveOperation("Create", time.Since(start), err)
	if err == nil {
		b.metrics.RecordBytes("Create", int64(len(entity.Payload)))
	}
	return key, err
}

func (b *instrumentedBackend) CreateBatch(ctx context.Context, entities []Entity) ([]string, error) {
	start := time.Now()
	keys, err := b.Backend.CreateBatch(ctx, entities)
	b.metrics.ObserveOperation("CreateBatch", time.Since(start), err)
	b.metrics.RecordBatchSize(len(entities))
	if err == nil {
		var total int64
		for _, e := range entities {
			total += int64(len(e.Payload))
		}
		b.metrics.RecordBytes("CreateBatch", total)
	}
	return keys, err
}

func (b *instrumentedBackend) Get(ctx context.Context, key string) (Entity, error) {
	start := time.Now()
	entity, err := b.Backend.Get(ctx, key)
	b.metrics.ObserveOperation("Get", time.Since(start), err)
	if err == nil {
		b.metrics.RecordBytes("Get", int64(len(entity.Payload)))
	}
	return entity, err
}

func (b *instrumentedBackend) Query(ctx context.Context, q AttributeQuery) (Page, error) {
	start := time.Now()
	page, err := b.Backend.Query(ctx, q)
	b.metrics.ObserveOperation("Query", time.Since(start), err)
	return page, err
}
