// Package apilookup resolves a published API's payment terms by its ID, for
// the per-request requirement override the paygate applies to the dynamic
// proxy route. Grounded on the Api/PaymentConfig/ApiEndpoint model in
// original_source/crates/shared/src/types.rs.
package apilookup

import (
	"context"
	"encoding/json"
)

// HTTPMethod is one of the methods an ApiEndpoint may be invoked with.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodDelete  HTTPMethod = "DELETE"
	MethodPatch   HTTPMethod = "PATCH"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

// Endpoint describes one upstream route a published API exposes.
type Endpoint struct {
	Path        string          `json:"path"`
	Method      HTTPMethod      `json:"method"`
	Headers     json.RawMessage `json:"headers,omitempty"`
	BodySchema  json.RawMessage `json:"bodySchema,omitempty"`
	QueryParams json.RawMessage `json:"queryParams,omitempty"`
}

// PaymentConfig is a publisher's price for their API. Enabled gates whether
// the dynamic proxy route will accept traffic for it at all: a disabled or
// absent PaymentConfig means the route has no price to quote, and the
// paygate rejects with a config-unavailable 402 rather than falling back to
// a hardcoded default.
type PaymentConfig struct {
	SolPublicKey   string  `json:"solPublicKey"`
	CostPerRequest float64 `json:"costPerRequest"`
	Enabled        bool    `json:"enabled"`
}

// Api is a publisher's registered upstream API.
type Api struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	BaseURL       string
	Endpoints     []Endpoint
	PaymentConfig *PaymentConfig
}

// Lookup resolves an Api by ID. A nil, nil return means "not found"; the
// proxy handler treats that as a 404 and the paygate as a config-unavailable
// 402, neither as an internal error.
type Lookup interface {
	Lookup(ctx context.Context, apiID string) (*Api, error)
}
