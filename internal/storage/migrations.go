package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// statements run in order at startup. Each is idempotent (IF NOT EXISTS),
// matching original_source/crates/database/src/migrations.rs — there is no
// migration history table, just a bootstrap run on every boot.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS apis (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		base_url TEXT NOT NULL,
		endpoints JSONB NOT NULL DEFAULT '[]'::jsonb,
		payment_config JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_apis_user_id ON apis(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_apis_created_at ON apis(created_at)`,
}

// RunMigrations bootstraps the schema. Safe to call on every process start.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}
