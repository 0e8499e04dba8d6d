// Package apperr defines the error taxonomy shared by every component in the
// ledger-backed storage pipeline. Handlers at the HTTP boundary map a Code to
// a status code; everything below the boundary checks sentinels with
// errors.Is/errors.As instead of string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeUnsupportedType   Code = "UNSUPPORTED_TYPE"
	CodeTooLarge          Code = "TOO_LARGE"
	CodeQuotaExceeded     Code = "QUOTA_EXCEEDED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeFileIncomplete    Code = "FILE_INCOMPLETE"
	CodeIntegrityFailed   Code = "INTEGRITY_FAILED"
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"
	CodeTimeout           Code = "TIMEOUT"
	CodeRetryExhausted    Code = "RETRY_EXHAUSTED"
	CodeConnectionError   Code = "CONNECTION_ERROR"
	CodeShuttingDown      Code = "SHUTTING_DOWN"
	CodeInternal          Code = "INTERNAL"
)

// Sentinel errors. Components wrap these with *Error for context; callers
// outside the wrapping component should match with errors.Is against these
// values, never against Error.Error() text.
var (
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedType   = errors.New("unsupported content type")
	ErrTooLarge          = errors.New("payload too large")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrNotFound          = errors.New("not found")
	ErrFileIncomplete    = errors.New("file incomplete")
	ErrIntegrityFailed   = errors.New("integrity check failed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrTimeout           = errors.New("timeout")
	ErrRetryExhausted    = errors.New("retry exhausted")
	ErrConnection        = errors.New("connection error")
	ErrShuttingDown      = errors.New("shutting down")
)

// codeForSentinel maps a sentinel to its stable Code. Used by New when the
// caller doesn't supply one explicitly.
var codeForSentinel = map[error]Code{
	ErrValidation:        CodeValidation,
	ErrUnsupportedType:   CodeUnsupportedType,
	ErrTooLarge:          CodeTooLarge,
	ErrQuotaExceeded:     CodeQuotaExceeded,
	ErrNotFound:          CodeNotFound,
	ErrFileIncomplete:    CodeFileIncomplete,
	ErrIntegrityFailed:   CodeIntegrityFailed,
	ErrSessionNotFound:   CodeSessionNotFound,
	ErrLedgerUnavailable: CodeLedgerUnavailable,
	ErrTimeout:           CodeTimeout,
	ErrRetryExhausted:    CodeRetryExhausted,
	ErrConnection:        CodeConnectionError,
	ErrShuttingDown:      CodeShuttingDown,
}

// Error wraps a sentinel error with structured operational context: which
// operation failed, for which file/owner, after how many attempts.
type Error struct {
	Op         string
	Code       Code
	FileID     string
	Owner      string
	Attempt    int
	MaxRetries int
	Duration   time.Duration
	Backend    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Err)
	if e.FileID != "" {
		msg += fmt.Sprintf(" (file_id=%s)", e.FileID)
	}
	if e.Attempt > 0 {
		msg += fmt.Sprintf(" (attempt=%d/%d)", e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap enables errors.Is/errors.As to match against the wrapped sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err (normally one of the sentinels above) with operation context.
// If err is a known sentinel its Code is inferred; otherwise CodeInternal.
func New(op string, err error) *Error {
	code, ok := codeForSentinel[err]
	if !ok {
		code = CodeInternal
	}
	return &Error{Op: op, Code: code, Err: err}
}

// WithFileID returns e with FileID set, for chained construction.
func (e *Error) WithFileID(fileID string) *Error {
	e.FileID = fileID
	return e
}

// WithOwner returns e with Owner set.
func (e *Error) WithOwner(owner string) *Error {
	e.Owner = owner
	return e
}

// WithAttempt returns e with retry bookkeeping set.
func (e *Error) WithAttempt(attempt, maxRetries int) *Error {
	e.Attempt = attempt
	e.MaxRetries = maxRetries
	return e
}

// WithBackend returns e with the backend identifier set.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, otherwise
// CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a Code to the status code the HTTP boundary returns for it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeUnsupportedType:
		return http.StatusBadRequest
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeFileIncomplete:
		return http.StatusConflict
	case CodeIntegrityFailed, CodeInternal:
		return http.StatusInternalServerError
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeLedgerUnavailable, CodeConnectionError, CodeRetryExhausted:
		return http.StatusServiceUnavailable
	case CodeShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
