// Command gateway boots the x402 payment gateway: connects to Postgres,
// runs migrations, wires the facilitator/paygate/router, and serves HTTP.
// Grounded on the teacher's main.go bootstrap shape: slog JSON setup,
// config.Load() with fail-fast os.Exit(1), then wire and listen.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/umbra-labs/x402-gateway/internal/auth"
	"github.com/umbra-labs/x402-gateway/internal/config"
	"github.com/umbra-labs/x402-gateway/internal/facilitator"
	"github.com/umbra-labs/x402-gateway/internal/httpapi"
	"github.com/umbra-labs/x402-gateway/internal/paygate"
	"github.com/umbra-labs/x402-gateway/internal/proxy"
	"github.com/umbra-labs/x402-gateway/internal/requirements"
	"github.com/umbra-labs/x402-gateway/internal/storage"
	"github.com/umbra-labs/x402-gateway/internal/x402types"
)

// These constants describe the template token the protected proxy route quotes
// against before a per-API payment_config override replaces PayTo and
// MaxAmountRequired. Matches original_source/crates/server/src/app.rs's
// "temporary address, would be removed essentially if the API has address
// attached" placeholder.
const (
	solanaDevnetNetwork  = "solana-devnet"
	solanaDevnetUSDCMint = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	placeholderSolanaPay = "8hAVK73RZdtyP2kE82ohAsAGgKaxffS6pU7B9bxRg2RL"
)

func buildTemplateOffers(baseURL *url.URL) (requirements.Offers, error) {
	asset, err := x402types.ParseMixedAddress(solanaDevnetUSDCMint)
	if err != nil {
		return requirements.Offers{}, fmt.Errorf("parsing solana devnet USDC mint: %w", err)
	}
	payTo, err := x402types.ParseMixedAddress(placeholderSolanaPay)
	if err != nil {
		return requirements.Offers{}, fmt.Errorf("parsing placeholder pay_to: %w", err)
	}
	token := x402types.TokenDeployment{Network: solanaDevnetNetwork, Address: asset, Decimals: 6}
	tag, err := x402types.NewPriceTagBuilder(token).TokenAmount(0).PayTo(payTo).Build()
	if err != nil {
		return requirements.Offers{}, fmt.Errorf("building template price tag: %w", err)
	}
	return requirements.NewDeferred([]x402types.PriceTag{tag}, requirements.RouteMetadata{
		Description: "Protected API Proxy",
		MimeType:    "application/json",
	}, baseURL)
}

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := storage.RunMigrations(ctx, pool); err != nil {
		slog.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}

	users := storage.NewUserRepository(pool)
	apis := storage.NewApiRepository(pool)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenExpiry)

	fc, err := facilitator.NewHTTPClient(cfg.FacilitatorURL, 10*time.Second)
	if err != nil {
		slog.Error("invalid FACILITATOR_URL", "err", err)
		os.Exit(1)
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		slog.Error("invalid BASE_URL", "err", err)
		os.Exit(1)
	}

	// The proxy route has no fixed resource at configuration time — it is
	// resolved per-request from the incoming path against BaseURL, since
	// each call targets a different publisher-registered api_id. The
	// template's PayTo/MaxAmountRequired are placeholders: resolveRequirements
	// always overrides them from the target API's payment_config, or rejects
	// with config_unavailable if none is published.
	offers, err := buildTemplateOffers(baseURL)
	if err != nil {
		slog.Error("failed to build template payment offers", "err", err)
		os.Exit(1)
	}

	gate := &paygate.Gate{
		Facilitator: fc,
		Offers:      offers,
		Lookup:      apis,
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Users:  users,
		Apis:   apis,
		Tokens: tokens,
		Gate:   gate,
		Proxy:  proxy.NewHandler(apis),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("gateway starting",
		"addr", addr,
		"facilitator", cfg.FacilitatorURL,
		"base_url", cfg.BaseURL,
	)

	if err := http.ListenAndServe(addr, router); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
