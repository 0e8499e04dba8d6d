// Package middleware provides HTTP middleware for the ledgerfs API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/onchainfs/ledgerfs/pkg/auth"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims from the request context. Returns
// nil if no claims are present (no Bearer token and no X-API-Key bypass).
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// BearerAuth validates the Authorization: Bearer token on every request,
// storing its claims in the request context. An X-API-Key header matching
// bypassKey (when bypassKey is non-empty) authenticates as an unrestricted
// legacy caller instead, matching the quota accountant's own bypass key.
func BearerAuth(jwtService *auth.JWTService, bypassKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassKey != "" && r.Header.Get("X-API-Key") == bypassKey {
				claims := &auth.Claims{UserID: "legacy-bypass", Role: "admin"}
				ctx := context.WithValue(r.Context(), claimsContextKey, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			tokenString, ok := extractBearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
