package metrics

import "time"

// BackendMetrics observes calls made directly against a ledger Backend
// (Create, CreateBatch, Get, Query), independent of the pool's acquire/hold
// bookkeeping.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// Implementations are optional - pass nil to disable collection with zero
// overhead.
type BackendMetrics interface {
	// ObserveOperation records one backend call. operation is e.g.
	// "Create", "CreateBatch", "Get", "Query".
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes written or read by operation.
	RecordBytes(operation string, bytes int64)

	// RecordBatchSize records the number of entities in a CreateBatch call.
	RecordBatchSize(size int)
}
