package metrics

import "time"

// IngestMetrics observes the ingestion and retrieval pipelines: admission
// latency and outcome, async batch-write duration and fallback rate,
// retrieval latency, and per-owner quota usage.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// Implementations are optional - pass nil to disable collection with zero
// overhead.
type IngestMetrics interface {
	// ObserveAdmission records InitiateUpload's synchronous admission phase.
	// outcome is e.g. "accepted", "too_large", "quota_exceeded",
	// "unsupported_type", "idempotent_replay".
	ObserveAdmission(duration time.Duration, outcome string)

	// ObserveBatchWrite records one batch write by the async writer, across
	// all of its retry attempts. outcome is "ok", "retry", or "exhausted".
	ObserveBatchWrite(duration time.Duration, chunkCount int, outcome string)

	// ObserveFallback records the writer falling back to individual chunk
	// writes after batch retries were exhausted.
	ObserveFallback(fileID string)

	// ObserveRetrieval records one GetFile call. outcome is "ok",
	// "not_found", "incomplete", "integrity_failed", or "ledger_unavailable".
	ObserveRetrieval(duration time.Duration, outcome string)

	// RecordQuotaUsage records owner's current daily byte usage.
	RecordQuotaUsage(owner string, bytesUsed int64)
}
