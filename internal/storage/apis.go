package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/umbra-labs/x402-gateway/internal/apilookup"
)

// ApiRepository is the Postgres-backed store for published apis. Grounded on
// original_source/crates/database/src/repository.rs's ApiRepository.
type ApiRepository struct {
	pool *pgxpool.Pool
}

// NewApiRepository wraps an already-connected pool.
func NewApiRepository(pool *pgxpool.Pool) *ApiRepository {
	return &ApiRepository{pool: pool}
}

func scanApi(row pgx.Row) (*Api, error) {
	var a Api
	var endpointsJSON, configJSON []byte
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.BaseURL,
		&endpointsJSON, &configJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(endpointsJSON, &a.Endpoints); err != nil {
		return nil, fmt.Errorf("decoding endpoints: %w", err)
	}
	if len(configJSON) > 0 {
		var cfg apilookup.PaymentConfig
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("decoding payment_config: %w", err)
		}
		a.PaymentConfig = &cfg
	}
	return &a, nil
}

// CreateAPI inserts a new published API for userID.
func (r *ApiRepository) CreateAPI(ctx context.Context, userID string, api Api) (*Api, error) {
	endpointsJSON, err := marshalEndpoints(api.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("encoding endpoints: %w", err)
	}
	configJSON, err := marshalPaymentConfig(api.PaymentConfig)
	if err != nil {
		return nil, fmt.Errorf("encoding payment_config: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO apis (id, user_id, name, description, base_url, endpoints, payment_config)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, user_id, name, description, base_url, endpoints, payment_config, created_at, updated_at`,
		uuid.New().String(), userID, api.Name, api.Description, api.BaseURL, endpointsJSON, configJSON,
	)
	return scanApi(row)
}

// GetAPIByID fetches a published API by ID, returning ErrNotFound if absent.
func (r *ApiRepository) GetAPIByID(ctx context.Context, id string) (*Api, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, description, base_url, endpoints, payment_config, created_at, updated_at
		 FROM apis WHERE id = $1`, id)
	api, err := scanApi(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching api: %w", err)
	}
	return api, nil
}

// ListAPIsByUser returns every API published by userID, newest first.
func (r *ApiRepository) ListAPIsByUser(ctx context.Context, userID string) ([]Api, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, description, base_url, endpoints, payment_config, created_at, updated_at
		 FROM apis WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing apis: %w", err)
	}
	defer rows.Close()

	var apis []Api
	for rows.Next() {
		api, err := scanApi(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api: %w", err)
		}
		apis = append(apis, *api)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing apis: %w", err)
	}
	return apis, nil
}

// UpdateAPI overwrites the mutable fields of an existing published API.
func (r *ApiRepository) UpdateAPI(ctx context.Context, id string, api Api) (*Api, error) {
	endpointsJSON, err := marshalEndpoints(api.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("encoding endpoints: %w", err)
	}
	configJSON, err := marshalPaymentConfig(api.PaymentConfig)
	if err != nil {
		return nil, fmt.Errorf("encoding payment_config: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE apis SET name = $2, description = $3, base_url = $4, endpoints = $5,
		 payment_config = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, user_id, name, description, base_url, endpoints, payment_config, created_at, updated_at`,
		id, api.Name, api.Description, api.BaseURL, endpointsJSON, configJSON,
	)
	updated, err := scanApi(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating api: %w", err)
	}
	return updated, nil
}

// DeleteAPI removes a published API, returning ErrNotFound if it did not
// exist.
func (r *ApiRepository) DeleteAPI(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM apis WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting api: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Lookup implements apilookup.Lookup: a thin read path the paygate uses to
// resolve an API's payment terms without pulling in the full storage
// package's types.
func (r *ApiRepository) Lookup(ctx context.Context, apiID string) (*apilookup.Api, error) {
	api, err := r.GetAPIByID(ctx, apiID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return api.toLookupApi(), nil
}

var _ apilookup.Lookup = (*ApiRepository)(nil)
