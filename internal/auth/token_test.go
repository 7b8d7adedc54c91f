package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndValidateTokenRoundTrips(t *testing.T) {
	mgr := NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	token, err := mgr.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", claims.UserID)
	}
	if claims.TokenID == "" {
		t.Fatalf("expected a non-empty token id")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	mgr := NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), -time.Hour)
	token, err := mgr.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := mgr.ValidateToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	mgr := NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	token, err := mgr.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other := NewTokenManager([]byte("fedcba9876543210fedcba9876543210"), time.Hour)
	if _, err := other.ValidateToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	mgr := NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	called := false
	h := mgr.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/users/u1/apis", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatalf("inner handler must not be called without a token")
	}
}

func TestRequireAuthAcceptsValidBearerToken(t *testing.T) {
	mgr := NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	token, err := mgr.IssueToken("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var seenUserID string
	h := mgr.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/users/u1/apis", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seenUserID != "user-1" {
		t.Fatalf("expected user-1 in context, got %q", seenUserID)
	}
}
