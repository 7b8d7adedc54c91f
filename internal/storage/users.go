package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository is the Postgres-backed store for publishers. Grounded on
// original_source/crates/database/src/repository.rs's UserRepository.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository wraps an already-connected pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateUser inserts a new publisher and returns the stored row.
func (r *UserRepository) CreateUser(ctx context.Context, name, email string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
		 RETURNING id, name, email, created_at`,
		uuid.New().String(), name, email,
	)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &u, nil
}

// GetUserByID fetches a publisher by ID, returning ErrNotFound if absent.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail fetches a publisher by email, returning ErrNotFound if
// absent.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM users WHERE email = $1`, email)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching user by email: %w", err)
	}
	return &u, nil
}
