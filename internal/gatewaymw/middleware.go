// Package gatewaymw holds the small chi-mountable middleware that sits in
// front of the payment gate, extracting the published API ID from the route.
// Publisher JWT auth on management endpoints lives in package auth.
// Grounded on the teacher's flat http.Handler middleware style
// (gateway/x402/middleware.go's ServeHTTP) generalized to chi's
// middleware-chain convention.
package gatewaymw

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
)

// APIIDParam is the chi URL parameter name the dynamic proxy route binds the
// published API's ID to.
const APIIDParam = "apiID"

// WithAPIIDFromPath reads the chi URL parameter named APIIDParam and attaches
// it to the request context so the payment gate can look up that API's
// payment_config.
func WithAPIIDFromPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiID := chi.URLParam(r, APIIDParam)
		if apiID != "" {
			r = r.WithContext(apilookup.WithAPIID(r.Context(), apiID))
		}
		next.ServeHTTP(w, r)
	})
}
