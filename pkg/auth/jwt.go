// Package auth provides bearer-token authentication for the ledgerfs API:
// JWT claims carrying user_id, role, and permissions, verified upstream of
// every handler.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for JWT operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// Claims represents JWT claims consumed by the ledgerfs API: an opaque
// bearer token verified upstream of this service, decoded here into the
// user_id/role/permissions the handlers need.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string   `json:"uid"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// IsAdmin returns true if the caller has the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// HasPermission returns true if the caller's permission list includes perm.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// JWTConfig holds configuration for JWT verification.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the expected token issuer claim.
	Issuer string
}

// JWTService validates bearer tokens presented to the API.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a JWT service with the given configuration.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "ledgerfs"
	}
	return &JWTService{config: config}, nil
}

// ValidateToken validates tokenString and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
