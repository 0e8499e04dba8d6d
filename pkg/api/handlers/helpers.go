package handlers

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/onchainfs/ledgerfs/pkg/api/middleware"
	"github.com/onchainfs/ledgerfs/pkg/apperr"
)

// maxMultipartMemory bounds how much of a multipart/form-data body the
// standard library buffers in memory before spilling to a temp file.
const maxMultipartMemory = 32 << 20 // 32 MiB

// idempotencyKeyPattern is the accepted shape of the Idempotency-Key header:
// 8-128 characters of [A-Za-z0-9_-]. The character class keeps the session
// store's prefixed badger keys well-formed.
var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// requesterID extracts the calling user's id from the JWT claims the auth
// middleware placed on the request context. Empty when unauthenticated
// endpoints are hit directly (none of the file endpoints are).
func requesterID(r *http.Request) string {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// bypassKeyHeader returns the X-API-Key header value, which quota.Accountant
// treats as an unlimited-bypass credential when it matches configuration.
func bypassKeyHeader(r *http.Request) string {
	return r.Header.Get("X-API-Key")
}

// parseBTLDays reads the BTL-Days header, returning fallback when absent or
// malformed.
func parseBTLDays(r *http.Request, fallback int) int {
	raw := r.Header.Get("BTL-Days")
	if raw == "" {
		return fallback
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return fallback
	}
	return days
}

// validationError wraps apperr.ErrValidation with op context, so the HTTP
// boundary reports CodeValidation/400 without the handler needing to know
// apperr's internals.
func validationError(op string) error {
	return apperr.New(op, apperr.ErrValidation)
}
