// Package proxy implements the payment-gated proxy handler: it never knows
// about payment, relying entirely on the paygate having already verified the
// request before it runs. Grounded on
// original_source/server/crates/server/src/proxy.rs's proxy_request,
// translated from axum extractors to net/http, and on the teacher's
// httputil.ReverseProxy-based proxy/rpc.go for the error-mapping and header
// conventions (502 on transport failure, structured slog on the server
// side only).
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
)

// ErrNotOwned is returned when the requested API exists but belongs to a
// different user than the one named in the URL.
var ErrNotOwned = errors.New("proxy: api not owned by user")

// Request is the JSON body the protected route accepts: a description of
// the call to make against the publisher's upstream.
type Request struct {
	Method      apilookup.HTTPMethod `json:"method"`
	Path        *string              `json:"path,omitempty"`
	Headers     json.RawMessage      `json:"headers,omitempty"`
	Body        json.RawMessage      `json:"body,omitempty"`
	QueryParams json.RawMessage      `json:"queryParams,omitempty"`
}

// Response is the JSON the protected route replies with on success: the
// upstream's status, headers, and body verbatim.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
}

// Handler forwards a verified Request to the target API's upstream. It is
// the downstream handler the paygate wraps and holds no payment state of
// its own.
type Handler struct {
	Lookup apilookup.Lookup
	Client *http.Client
}

// NewHandler builds a Handler with a default http.Client, matching the
// "upstream call uses the HTTP client's default, no explicit deadline"
// resource model.
func NewHandler(lookup apilookup.Lookup) *Handler {
	return &Handler{Lookup: lookup, Client: &http.Client{}}
}

// ServeHTTP implements the proxy route. It expects :userID and :apiID to
// already be resolved onto the request context by the router.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, apiID := routeIDs(r)

	var req Request
	body, err := io.ReadAll(r.Body)
	if err != nil || json.Unmarshal(body, &req) != nil {
		http.Error(w, "malformed proxy request body", http.StatusBadRequest)
		return
	}

	api, err := h.Lookup.Lookup(r.Context(), apiID)
	if err != nil {
		slog.Error("proxy: api lookup failed", "api_id", apiID, "err", err)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if api == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if api.UserID != userID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	upstreamReq, err := h.buildUpstreamRequest(r.Context(), api.BaseURL, req)
	if err != nil {
		http.Error(w, "malformed proxy request body", http.StatusBadRequest)
		return
	}

	resp, err := h.Client.Do(upstreamReq)
	if err != nil {
		slog.Error("proxy: upstream transport error", "api_id", apiID, "err", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("proxy: reading upstream body failed", "api_id", apiID, "err", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(wrapResponse(resp, respBody))
}

// buildUpstreamRequest composes the outbound request: target URL from
// base_url + path + query params, translated headers, translated method,
// and the JSON body serialized to bytes.
func (h *Handler) buildUpstreamRequest(ctx context.Context, baseURL string, req Request) (*http.Request, error) {
	path := "/"
	if req.Path != nil && *req.Path != "" {
		path = *req.Path
	}
	target := strings.TrimSuffix(baseURL, "/") + path

	if query := queryString(req.QueryParams); query != "" {
		target += "?" + query
	}

	var bodyBytes []byte
	if len(req.Body) > 0 && string(req.Body) != "null" {
		var raw any
		if err := json.Unmarshal(req.Body, &raw); err != nil {
			return nil, fmt.Errorf("decoding proxy body: %w", err)
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encoding proxy body: %w", err)
		}
		bodyBytes = encoded
	}

	method := string(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, newReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}

	applyHeaders(httpReq, req.Headers)
	return httpReq, nil
}

// queryString turns a JSON object of query params into a "k=v&k=v" string.
// Non-object or empty input yields an empty string.
func queryString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return ""
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, fmt.Sprintf("%v", v))
	}
	return values.Encode()
}

// applyHeaders translates a JSON object into request headers, silently
// skipping any entry whose key or value is not representable as an HTTP
// header — per the spec's documented default, no logging on skip.
func applyHeaders(req *http.Request, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var headers map[string]any
	if err := json.Unmarshal(raw, &headers); err != nil {
		return
	}
	for k, v := range headers {
		s, ok := v.(string)
		if !ok {
			continue
		}
		req.Header.Set(k, s)
	}
}

// wrapResponse packages the upstream's status/headers/body as the
// protected route's success response, parsing the body as JSON where
// possible and falling back to the raw string otherwise.
func wrapResponse(resp *http.Response, body []byte) Response {
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = string(body)
	}

	return Response{Status: resp.StatusCode, Headers: headers, Body: parsed}
}
