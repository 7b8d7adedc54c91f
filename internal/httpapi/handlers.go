// Package httpapi wires the chi router: publisher management endpoints
// (users, apis CRUD) and the payment-gated proxy route. Grounded on
// original_source/crates/server/src/{app,handlers}.rs's route table and
// status-code mapping, translated from axum extractors to chi handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
	"github.com/umbra-labs/x402-gateway/internal/auth"
	"github.com/umbra-labs/x402-gateway/internal/storage"
)

// userStore and apiStore narrow storage.UserRepository/ApiRepository down to
// what the handlers need, so tests can supply in-memory fakes instead of a
// live Postgres connection.
type userStore interface {
	CreateUser(ctx context.Context, name, email string) (*storage.User, error)
	GetUserByID(ctx context.Context, id string) (*storage.User, error)
}

type apiStore interface {
	CreateAPI(ctx context.Context, userID string, api storage.Api) (*storage.Api, error)
	GetAPIByID(ctx context.Context, id string) (*storage.Api, error)
	ListAPIsByUser(ctx context.Context, userID string) ([]storage.Api, error)
	UpdateAPI(ctx context.Context, id string, api storage.Api) (*storage.Api, error)
	DeleteAPI(ctx context.Context, id string) error
}

// createUserRequest mirrors original_source's CreateUserRequest.
type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func createUser(users userStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		user, err := users.CreateUser(r.Context(), req.Name, req.Email)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func getUser(users userStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := users.GetUserByID(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// apiRequest mirrors original_source's CreateApiRequest.
type apiRequest struct {
	Name          string                   `json:"name"`
	Description   string                   `json:"description,omitempty"`
	BaseURL       string                   `json:"baseUrl"`
	Endpoints     []apilookup.Endpoint     `json:"endpoints"`
	PaymentConfig *apilookup.PaymentConfig `json:"paymentConfig,omitempty"`
}

func createAPI(users userStore, apis apiStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if _, err := users.GetUserByID(r.Context(), userID); err != nil {
			writeNotFoundOr500(w, err)
			return
		}

		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		api, err := apis.CreateAPI(r.Context(), userID, storage.Api{
			Name: req.Name, Description: req.Description, BaseURL: req.BaseURL,
			Endpoints: req.Endpoints, PaymentConfig: req.PaymentConfig,
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, api)
	}
}

func listUserAPIs(users userStore, apis apiStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if _, err := users.GetUserByID(r.Context(), userID); err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		list, err := apis.ListAPIsByUser(r.Context(), userID)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getAPI(apis apiStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, apiID := chi.URLParam(r, "userID"), chi.URLParam(r, "apiID")
		api, err := apis.GetAPIByID(r.Context(), apiID)
		if err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		if api.UserID != userID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, api)
	}
}

func updateAPI(apis apiStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, apiID := chi.URLParam(r, "userID"), chi.URLParam(r, "apiID")
		existing, err := apis.GetAPIByID(r.Context(), apiID)
		if err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		if existing.UserID != userID {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		updated, err := apis.UpdateAPI(r.Context(), apiID, storage.Api{
			Name: req.Name, Description: req.Description, BaseURL: req.BaseURL,
			Endpoints: req.Endpoints, PaymentConfig: req.PaymentConfig,
		})
		if err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteAPI(apis apiStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, apiID := chi.URLParam(r, "userID"), chi.URLParam(r, "apiID")
		existing, err := apis.GetAPIByID(r.Context(), apiID)
		if err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		if existing.UserID != userID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := apis.DeleteAPI(r.Context(), apiID); err != nil {
			writeNotFoundOr500(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFoundOr500(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
}

// loginRequest issues a publisher session token for the given user ID, so
// management endpoints behind auth.RequireAuth have a way to obtain one. The
// ID is not checked against the user store.
type loginRequest struct {
	UserID string `json:"userId"`
}

func issueToken(tokens *auth.TokenManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token, err := tokens.IssueToken(req.UserID)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
