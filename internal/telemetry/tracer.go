package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for file-storage operations, following OpenTelemetry
// semantic conventions where applicable.
const (
	AttrFileID         = "file.id"
	AttrFilename       = "file.name"
	AttrContentType    = "file.content_type"
	AttrExtension      = "file.extension"
	AttrSize           = "file.size"
	AttrOwner          = "file.owner"
	AttrIdempotencyKey = "file.idempotency_key"

	AttrChunkIndex = "chunk.index"
	AttrChunkCount = "chunk.count"

	AttrLedgerKey    = "ledger.key"
	AttrPoolKind     = "ledger.pool_kind"
	AttrBackendType  = "ledger.backend_type"
	AttrAttempt      = "ledger.attempt"
	AttrMaxRetries   = "ledger.max_retries"
	AttrBatchSize    = "ledger.batch_size"
	AttrOutcome      = "ledger.outcome"
	AttrBucket       = "storage.bucket"
	AttrRegion       = "storage.region"

	AttrCacheHit   = "cache.hit"
	AttrCacheType  = "cache.type"
	AttrQuerySource = "query.source"
)

// Span names for the ingestion, retrieval, pool, and quota operations.
const (
	SpanAdmission    = "ingest.admission"
	SpanBatchWrite   = "ingest.batch_write"
	SpanFallback     = "ingest.fallback_write"
	SpanRetrieve     = "retrieve.get_file"
	SpanChunkFetch   = "retrieve.fetch_chunk"
	SpanQuery        = "query.attribute_scan"
	SpanPoolAcquire  = "pool.acquire"
	SpanQuotaCheck   = "quota.check"
	SpanQuotaCommit  = "quota.commit"
	SpanBackendCall  = "backend.call"
)

// FileID returns an attribute for the file identifier.
func FileID(id string) attribute.KeyValue {
	return attribute.String(AttrFileID, id)
}

// Filename returns an attribute for the original filename.
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// ContentType returns an attribute for the MIME content type.
func ContentType(ct string) attribute.KeyValue {
	return attribute.String(AttrContentType, ct)
}

// Extension returns an attribute for the file extension.
func Extension(ext string) attribute.KeyValue {
	return attribute.String(AttrExtension, ext)
}

// Size returns an attribute for a file or chunk size in bytes.
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// Owner returns an attribute for the file/quota owner.
func Owner(owner string) attribute.KeyValue {
	return attribute.String(AttrOwner, owner)
}

// IdempotencyKey returns an attribute for the client-supplied idempotency key.
func IdempotencyKey(key string) attribute.KeyValue {
	return attribute.String(AttrIdempotencyKey, key)
}

// ChunkIndex returns an attribute for a 0-based chunk sequence number.
func ChunkIndex(idx int) attribute.KeyValue {
	return attribute.Int(AttrChunkIndex, idx)
}

// ChunkCount returns an attribute for the total chunk count.
func ChunkCount(n int) attribute.KeyValue {
	return attribute.Int(AttrChunkCount, n)
}

// LedgerKey returns an attribute for the key addressing an entity on the
// ledger.
func LedgerKey(key string) attribute.KeyValue {
	return attribute.String(AttrLedgerKey, key)
}

// PoolKind returns an attribute for which client pool (read/write) a span
// concerns.
func PoolKind(kind string) attribute.KeyValue {
	return attribute.String(AttrPoolKind, kind)
}

// BackendType returns an attribute for the ledger backend in play (memory,
// s3).
func BackendType(t string) attribute.KeyValue {
	return attribute.String(AttrBackendType, t)
}

// Attempt returns an attribute for the retry attempt number.
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// MaxRetries returns an attribute for the maximum retry attempts configured.
func MaxRetries(n int) attribute.KeyValue {
	return attribute.Int(AttrMaxRetries, n)
}

// BatchSize returns an attribute for the number of entities in a write
// batch.
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// Outcome returns an attribute for an operation's terminal outcome (ok,
// retry, exhausted, not_found, ...).
func Outcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}

// Bucket returns an attribute for the S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// Region returns an attribute for the cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// CacheHit returns an attribute for a cache hit/miss indicator.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheType returns an attribute for which cache (session, entitykey) a
// span concerns.
func CacheType(t string) attribute.KeyValue {
	return attribute.String(AttrCacheType, t)
}

// QuerySource returns an attribute for where a read was satisfied from
// (entitykey_cache, attribute_scan).
func QuerySource(source string) attribute.KeyValue {
	return attribute.String(AttrQuerySource, source)
}

// StartBackendSpan starts a span for a ledger Backend call.
func StartBackendSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{attribute.String("backend.operation", operation)}, attrs...)
	return StartSpan(ctx, SpanBackendCall, trace.WithAttributes(allAttrs...))
}

// StartPoolSpan starts a span for a pool WithRead/WithWrite call, covering
// the acquire and the retried operation.
func StartPoolSpan(ctx context.Context, kind string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{PoolKind(kind)}, attrs...)
	return StartSpan(ctx, SpanPoolAcquire, trace.WithAttributes(allAttrs...))
}
