package metrics

// CacheMetrics observes the badger-backed caches fronting the session store
// and entity-key cache: hit/miss counts, derived hit ratio, and current
// entry count.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// Implementations are optional - pass nil to disable collection with zero
// overhead.
type CacheMetrics interface {
	// RecordHit records a cache hit for cacheType ("session" or "entitykey").
	RecordHit(cacheType string)

	// RecordMiss records a cache miss for cacheType.
	RecordMiss(cacheType string)

	// RecordHitRatio records the hit ratio (0.0 to 1.0) for cacheType.
	RecordHitRatio(cacheType string, ratio float64)

	// RecordEntries records the current number of entries held by cacheType.
	RecordEntries(cacheType string, count int)
}
