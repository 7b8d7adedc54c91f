// Package auth issues and validates publisher session tokens for the
// management endpoints (user/API CRUD). It never gates the payment-gated
// proxy route — that route's sole gate is the paygate. Grounded on the
// teacher's batch-RPC JWT mechanism (x402/token.go): same HMAC-SHA256
// signing via golang-jwt/jwt/v5, same google/uuid token id, repurposed for
// publisher sessions instead of RPC-credit batching (moot under this spec's
// per-request settlement model).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails signature
// verification, has expired, or carries malformed claims.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Claims is the JWT payload for a publisher session.
type Claims struct {
	jwt.RegisteredClaims
	// TokenID is a server-generated UUID, unique per issued token.
	TokenID string `json:"tid"`
	// UserID is the publisher this session belongs to.
	UserID string `json:"uid"`
}

// TokenManager issues and validates publisher session JWTs.
type TokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewTokenManager creates a TokenManager with the given HMAC secret and
// session lifetime.
func NewTokenManager(secret []byte, expiry time.Duration) *TokenManager {
	return &TokenManager{secret: secret, expiry: expiry}
}

// IssueToken signs a new session JWT for userID.
func (m *TokenManager) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
		TokenID: uuid.New().String(),
		UserID:  userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies the JWT signature and expiry, returning
// the embedded claims.
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
