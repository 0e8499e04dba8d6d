package metrics

import "time"

// PoolMetrics observes the ledger client pool's bounded read/write handle
// lifecycle: how long callers wait to acquire a handle, how long they hold
// it, and how many are in use or queued at any moment.
//
// Implementations are optional - pass nil to disable collection with zero
// overhead.
type PoolMetrics interface {
	// ObserveAcquire records how long a caller waited for a handle from
	// poolType ("read" or "write") before acquiring one.
	ObserveAcquire(poolType string, waited time.Duration)

	// ObserveHold records how long a caller held a handle from poolType
	// before releasing it.
	ObserveHold(poolType string, held time.Duration)

	// RecordHandlesInUse records the number of handles currently checked out
	// of poolType.
	RecordHandlesInUse(poolType string, count int)

	// RecordQueueDepth records the number of callers currently waiting for a
	// handle from poolType.
	RecordQueueDepth(poolType string, depth int)

	// RecordEviction records an idle handle being closed by the pool's
	// health loop. reason is e.g. "idle_timeout" or "health_check_failed".
	RecordEviction(poolType, reason string)
}
