// Package config loads gateway configuration from the environment.
// Grounded on the teacher's config/config.go: same getEnv/getEnvInt
// helpers, same .env-via-godotenv dev convenience, same fail-fast Load.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration.
type Config struct {
	// DatabaseURL is the Postgres DSN the storage layer connects with.
	DatabaseURL string

	// FacilitatorURL is the x402 facilitator endpoint this gateway verifies
	// and settles payments against.
	FacilitatorURL string

	// BaseURL is this gateway's own public URL, used to resolve the
	// protected proxy route's resource field.
	BaseURL string

	// JWTSecret is the HMAC-SHA256 key signing publisher session tokens.
	// Required: it protects every management (CRUD) endpoint.
	JWTSecret []byte

	// TokenExpiry is how long an issued publisher session token remains
	// valid.
	TokenExpiry time.Duration

	// Port is the HTTP listen port.
	Port int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded if present (dev convenience; production uses
// real env vars).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		FacilitatorURL: getEnv("FACILITATOR_URL", "https://facilitator.x402.rs"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:3000"),
		Port:           getEnvInt("PORT", 8080),
		TokenExpiry:    time.Duration(getEnvInt("TOKEN_EXPIRY_HOURS", 168)) * time.Hour,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL env var is required")
	}

	jwtHex := getEnv("JWT_SECRET", "")
	if jwtHex == "" {
		return nil, fmt.Errorf("JWT_SECRET env var is required (32-byte hex)")
	}
	secret, err := hex.DecodeString(jwtHex)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET must be valid hex: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes (64 hex chars)")
	}
	cfg.JWTSecret = secret

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
