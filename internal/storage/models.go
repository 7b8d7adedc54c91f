// Package storage is the Postgres-backed persistence layer: users and their
// published apis, including the endpoint/payment_config JSONB the paygate
// and proxy handler consume. Grounded on
// original_source/crates/database/{models,migrations,repository}.rs, adapted
// from sqlx row-mapping to pgx's scan-into-struct convention.
package storage

import (
	"encoding/json"
	"time"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
)

// User is a registered publisher.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Api is a publisher's registered upstream API, as persisted. Endpoints and
// PaymentConfig round-trip through the apis.endpoints/payment_config JSONB
// columns.
type Api struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"userId"`
	Name          string                   `json:"name"`
	Description   string                   `json:"description,omitempty"`
	BaseURL       string                   `json:"baseUrl"`
	Endpoints     []apilookup.Endpoint     `json:"endpoints"`
	PaymentConfig *apilookup.PaymentConfig `json:"paymentConfig,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// toLookupApi projects the persisted row down to the apilookup.Api shape the
// paygate and proxy handler consume, so they never need the full record.
func (a Api) toLookupApi() *apilookup.Api {
	return &apilookup.Api{
		ID:            a.ID,
		UserID:        a.UserID,
		Name:          a.Name,
		Description:   a.Description,
		BaseURL:       a.BaseURL,
		Endpoints:     a.Endpoints,
		PaymentConfig: a.PaymentConfig,
	}
}

// marshalEndpoints encodes endpoints for the JSONB column; an empty slice
// round-trips as "[]", matching the migration's NOT NULL DEFAULT '[]'.
func marshalEndpoints(endpoints []apilookup.Endpoint) ([]byte, error) {
	if endpoints == nil {
		endpoints = []apilookup.Endpoint{}
	}
	return json.Marshal(endpoints)
}

// marshalPaymentConfig encodes a nullable PaymentConfig for the JSONB
// column; nil stays nil (SQL NULL), never a JSON "null" string.
func marshalPaymentConfig(cfg *apilookup.PaymentConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
