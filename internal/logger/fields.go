package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so downstream log
// aggregation and querying can rely on a stable vocabulary.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID   = "trace_id"   // OpenTelemetry trace ID for request correlation
	KeySpanID    = "span_id"    // OpenTelemetry span ID for operation tracking
	KeyRequestID = "request_id" // HTTP request ID

	// ========================================================================
	// HTTP
	// ========================================================================
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // HTTP request path
	KeyStatus    = "status"     // HTTP status code
	KeyStatusMsg = "status_msg" // Human-readable status message
	KeyClientIP  = "client_ip"  // Client IP address

	// ========================================================================
	// File identity
	// ========================================================================
	KeyFileID      = "file_id"      // File identifier
	KeyFilename    = "filename"     // Original filename
	KeyContentType = "content_type" // MIME content type
	KeyExtension   = "extension"    // File extension
	KeySize        = "size"         // File or chunk size in bytes
	KeyOwner       = "owner"        // File/quota owner identifier

	// ========================================================================
	// Chunking
	// ========================================================================
	KeyChunkIndex    = "chunk_index"    // 0-based chunk sequence number
	KeyChunkCount    = "chunk_count"    // Total number of chunks for a file
	KeyChunkChecksum = "chunk_checksum" // SHA-256 checksum of a chunk

	// ========================================================================
	// Sessions & idempotency
	// ========================================================================
	KeySessionID      = "session_id"      // Upload session identifier
	KeyIdempotencyKey = "idempotency_key" // Client-supplied idempotency key

	// ========================================================================
	// Ledger / storage backend
	// ========================================================================
	KeyLedgerKey  = "ledger_key"  // Key used to address an entity in the ledger
	KeyPoolKind   = "pool_kind"   // Client pool kind: read, write
	KeyStoreType  = "store_type"  // Backend type: s3, memory
	KeyBucket     = "bucket"      // Cloud bucket name
	KeyRegion     = "region"      // Cloud region
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeyBatchSize  = "batch_size"  // Number of entities in a write batch

	// ========================================================================
	// Cache layer
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheState    = "cache_state"    // Cache state: dirty, clean, evicted
	KeyCacheSize     = "cache_size"     // Current cache size
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity
	KeyEvicted       = "evicted"        // Number of entries evicted

	// ========================================================================
	// Quota
	// ========================================================================
	KeyQuotaReserved = "quota_reserved" // Bytes reserved against quota
	KeyQuotaUsed     = "quota_used"     // Bytes committed against quota
	KeyQuotaLimit    = "quota_limit"    // Owner quota ceiling

	// ========================================================================
	// Query
	// ========================================================================
	KeyQueryAttribute = "query_attribute" // Attribute being queried: owner, extension, content_type
	KeyQueryValue     = "query_value"     // Attribute value being matched
	KeyResultCount    = "result_count"    // Number of results returned
	KeyCursor         = "cursor"          // Pagination cursor

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric/enum error code
	KeySource     = "source"      // Data source: cache, ledger
	KeyOperation  = "operation"   // Sub-operation type for complex operations
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for HTTP request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Method returns a slog.Attr for HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for HTTP request path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for HTTP/operation status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// FileID returns a slog.Attr for file identifier
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// Filename returns a slog.Attr for original filename
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// ContentType returns a slog.Attr for MIME content type
func ContentType(ct string) slog.Attr {
	return slog.String(KeyContentType, ct)
}

// Extension returns a slog.Attr for file extension
func Extension(ext string) slog.Attr {
	return slog.String(KeyExtension, ext)
}

// Size returns a slog.Attr for file or chunk size
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Owner returns a slog.Attr for file/quota owner
func Owner(owner string) slog.Attr {
	return slog.String(KeyOwner, owner)
}

// ChunkIndex returns a slog.Attr for 0-based chunk sequence number
func ChunkIndex(idx int) slog.Attr {
	return slog.Int(KeyChunkIndex, idx)
}

// ChunkCount returns a slog.Attr for total chunk count
func ChunkCount(n int) slog.Attr {
	return slog.Int(KeyChunkCount, n)
}

// ChunkChecksum returns a slog.Attr for a chunk checksum
func ChunkChecksum(sum string) slog.Attr {
	return slog.String(KeyChunkChecksum, sum)
}

// SessionID returns a slog.Attr for upload session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// IdempotencyKey returns a slog.Attr for client-supplied idempotency key
func IdempotencyKey(key string) slog.Attr {
	return slog.String(KeyIdempotencyKey, key)
}

// LedgerKey returns a slog.Attr for the ledger-addressable key of an entity
func LedgerKey(key string) slog.Attr {
	return slog.String(KeyLedgerKey, key)
}

// PoolKind returns a slog.Attr for which client pool (read/write) is involved
func PoolKind(kind string) slog.Attr {
	return slog.String(KeyPoolKind, kind)
}

// StoreType returns a slog.Attr for backend store type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Bucket returns a slog.Attr for cloud bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Region returns a slog.Attr for cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// BatchSize returns a slog.Attr for write batch size
func BatchSize(n int) slog.Attr {
	return slog.Int(KeyBatchSize, n)
}

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheState returns a slog.Attr for cache state
func CacheState(state string) slog.Attr {
	return slog.String(KeyCacheState, state)
}

// CacheSize returns a slog.Attr for current cache size
func CacheSize(size int64) slog.Attr {
	return slog.Int64(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for maximum cache capacity
func CacheCapacity(capacity int64) slog.Attr {
	return slog.Int64(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for number of entries evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// QuotaReserved returns a slog.Attr for bytes reserved against quota
func QuotaReserved(n int64) slog.Attr {
	return slog.Int64(KeyQuotaReserved, n)
}

// QuotaUsed returns a slog.Attr for bytes committed against quota
func QuotaUsed(n int64) slog.Attr {
	return slog.Int64(KeyQuotaUsed, n)
}

// QuotaLimit returns a slog.Attr for owner quota ceiling
func QuotaLimit(n int64) slog.Attr {
	return slog.Int64(KeyQuotaLimit, n)
}

// QueryAttribute returns a slog.Attr for the attribute being queried
func QueryAttribute(attr string) slog.Attr {
	return slog.String(KeyQueryAttribute, attr)
}

// QueryValue returns a slog.Attr for the attribute value being matched
func QueryValue(v string) slog.Attr {
	return slog.String(KeyQueryValue, v)
}

// ResultCount returns a slog.Attr for number of results returned
func ResultCount(n int) slog.Attr {
	return slog.Int(KeyResultCount, n)
}

// Cursor returns a slog.Attr for a pagination cursor
func Cursor(c string) slog.Attr {
	return slog.String(KeyCursor, c)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric/enum error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Source returns a slog.Attr for data source
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// fmtHex is a small helper retained for callers that log raw byte keys.
func fmtHex(b []byte) string {
	return fmt.Sprintf("%x", b)
}
