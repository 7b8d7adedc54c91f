package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
)

type stubLookup struct {
	api *apilookup.Api
	err error
}

func (s stubLookup) Lookup(ctx context.Context, apiID string) (*apilookup.Api, error) {
	return s.api, s.err
}

func newRouter(h http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/users/{userID}/apis/{apiID}", h.ServeHTTP)
	return r
}

func TestProxyForwardsRequestAndWrapsResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Fatalf("expected /search, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Fatalf("expected translated header, got %q", r.Header.Get("X-Api-Key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer upstream.Close()

	lookup := stubLookup{api: &apilookup.Api{ID: "api-1", UserID: "user-1", BaseURL: upstream.URL}}
	handler := newRouter(&Handler{Lookup: lookup, Client: upstream.Client()})

	path := "/search"
	reqBody, _ := json.Marshal(Request{
		Method:  apilookup.MethodGet,
		Path:    &path,
		Headers: json.RawMessage(`{"X-Api-Key":"secret"}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("expected upstream status 200, got %d", resp.Status)
	}
	body, ok := resp.Body.(map[string]any)
	if !ok || body["result"] != "ok" {
		t.Fatalf("expected parsed JSON body, got %#v", resp.Body)
	}
}

func TestProxyReturns404WhenApiNotOwnedByUser(t *testing.T) {
	lookup := stubLookup{api: &apilookup.Api{ID: "api-1", UserID: "someone-else", BaseURL: "https://example.com"}}
	handler := newRouter(&Handler{Lookup: lookup, Client: http.DefaultClient})

	reqBody, _ := json.Marshal(Request{Method: apilookup.MethodGet})
	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProxyReturns404WhenApiMissing(t *testing.T) {
	handler := newRouter(&Handler{Lookup: stubLookup{api: nil}, Client: http.DefaultClient})

	reqBody, _ := json.Marshal(Request{Method: apilookup.MethodGet})
	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestProxyReturns400OnMalformedBody(t *testing.T) {
	handler := newRouter(&Handler{Lookup: stubLookup{}, Client: http.DefaultClient})

	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProxyMirrorsUpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer upstream.Close()

	lookup := stubLookup{api: &apilookup.Api{ID: "api-1", UserID: "user-1", BaseURL: upstream.URL}}
	handler := newRouter(&Handler{Lookup: lookup, Client: upstream.Client()})

	reqBody, _ := json.Marshal(Request{Method: apilookup.MethodGet})
	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected outer status to mirror upstream 500, got %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("expected wrapped status 500, got %d", resp.Status)
	}
}

func TestProxyReturns502OnUpstreamTransportFailure(t *testing.T) {
	lookup := stubLookup{api: &apilookup.Api{ID: "api-1", UserID: "user-1", BaseURL: "http://127.0.0.1:1"}}
	handler := newRouter(&Handler{Lookup: lookup, Client: http.DefaultClient})

	reqBody, _ := json.Marshal(Request{Method: apilookup.MethodGet})
	req := httptest.NewRequest(http.MethodPost, "/users/user-1/apis/api-1", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
