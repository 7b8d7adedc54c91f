package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/umbra-labs/x402-gateway/internal/auth"
	"github.com/umbra-labs/x402-gateway/internal/gatewaymw"
	"github.com/umbra-labs/x402-gateway/internal/paygate"
)

// Deps are the fully constructed collaborators the router wires together.
type Deps struct {
	Users  userStore
	Apis   apiStore
	Tokens *auth.TokenManager
	Gate   *paygate.Gate
	Proxy  http.Handler
}

// NewRouter builds the gateway's chi.Router per the route table: public
// user/API CRUD (auth required on mutating API routes), and the
// payment-gated proxy route protected solely by the paygate.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/sessions", issueToken(deps.Tokens))

	r.Post("/users", createUser(deps.Users))
	r.Get("/users/{userID}", getUser(deps.Users))

	r.Group(func(r chi.Router) {
		r.Use(deps.Tokens.RequireAuth)
		r.Post("/users/{userID}/apis", createAPI(deps.Users, deps.Apis))
		r.Put("/users/{userID}/apis/{apiID}", updateAPI(deps.Apis))
		r.Delete("/users/{userID}/apis/{apiID}", deleteAPI(deps.Apis))
	})

	r.Get("/users/{userID}/apis", listUserAPIs(deps.Users, deps.Apis))
	r.Get("/users/{userID}/apis/{apiID}", getAPI(deps.Apis))

	r.With(gatewaymw.WithAPIIDFromPath).Post(
		"/users/{userID}/apis/{apiID}",
		deps.Gate.Wrap(deps.Proxy).ServeHTTP,
	)

	return r
}

// corsMiddleware mirrors the original's permissive CORS layer (CorsLayer::permissive).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
