// Package main is the entrypoint for the reelscraper API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiranshivaraju/reelscraper/internal/api"
	"github.com/kiranshivaraju/reelscraper/internal/api/handler"
	mw "github.com/kiranshivaraju/reelscraper/internal/api/middleware"
	"github.com/kiranshivaraju/reelscraper/internal/api/response"
	"github.com/kiranshivaraju/reelscraper/internal/app"
	"github.com/kiranshivaraju/reelscraper/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "driver", cfg.Browser.Driver, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Build the engine (database, redis, browser driver)
	eng, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	// 3. Build router with dependencies
	auth := mw.NewAuth(strings.Split(cfg.Server.APIKeyHash, ",")...)
	if !auth.Enabled() {
		slog.Warn("API_KEY_HASH not set, API is unauthenticated")
	}
	rateLimit := mw.NewRateLimit(eng.Cache, cfg.Server.RateLimitPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:    healthHandler(eng.Service),
		SubmitJobHandler: handler.NewSubmitJobHandler(eng.Runner, cfg.Jobs.DefaultItemLimit),
		GetJobHandler:    handler.NewGetJobHandler(eng.Service),
		CancelJobHandler: handler.NewCancelJobHandler(eng.Runner, eng.Service),
		DownloadHandler:  handler.NewDownloadHandler(eng.Service),
	}

	router := api.NewRouter(deps)

	// 4. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	// Running jobs are cancelled and must release their browsers first.
	if err := eng.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("job shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger reports per-backend connectivity.
type pinger interface {
	Ping(ctx context.Context) map[string]error
}

// healthHandler checks the progress backend and job store.
func healthHandler(p pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		degraded := false
		for name, err := range p.Ping(r.Context()) {
			if err != nil {
				checks[name] = "degraded"
				degraded = true
				continue
			}
			checks[name] = "ok"
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
