package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context that is threaded through
// the ingestion, retrieval and query pipelines so every log line emitted
// while handling a request carries the same correlation fields.
type LogContext struct {
	TraceID        string // OpenTelemetry trace ID
	SpanID         string // OpenTelemetry span ID
	RequestID      string // HTTP request ID (X-Request-Id or generated)
	ClientIP       string // Client IP address (without port)
	FileID         string // File identifier being operated on
	IdempotencyKey string // Upload session idempotency key
	Owner          string // File/quota owner
	StartTime      time.Time
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithFileID returns a copy with the file ID set
func (lc *LogContext) WithFileID(fileID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.FileID = fileID
	}
	return clone
}

// WithOwner returns a copy with the owner set
func (lc *LogContext) WithOwner(owner string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Owner = owner
	}
	return clone
}

// WithRequestID returns a copy with the request ID set
func (lc *LogContext) WithRequestID(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RequestID = id
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
