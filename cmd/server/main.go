// Package main is the entrypoint for the Kagi API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/kagi/internal/api"
	"github.com/kiranshivaraju/kagi/internal/api/handler"
	mw "github.com/kiranshivaraju/kagi/internal/api/middleware"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/auth"
	"github.com/kiranshivaraju/kagi/internal/cache"
	"github.com/kiranshivaraju/kagi/internal/config"
	"github.com/kiranshivaraju/kagi/internal/encryption"
	"github.com/kiranshivaraju/kagi/internal/session"
	"github.com/kiranshivaraju/kagi/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	if _, ok := os.LookupEnv(encryption.KeyEnvVar); !ok {
		slog.Warn("encryption key not set; secret operations will fail", "env_var", encryption.KeyEnvVar)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build handlers and router
	deps, err := newDependencies(cfg, store.NewPostgresStore(pool), redisCache, logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newDependencies creates sessions, the authentication gate and every
// handler over one store and cache.
func newDependencies(cfg *config.Config, pgStore *store.PostgresStore, c cache.Cache, logger *slog.Logger) (api.Dependencies, error) {
	sessions, err := session.NewManager(pgStore, cfg.Session)
	if err != nil {
		return api.Dependencies{}, fmt.Errorf("create session manager: %w", err)
	}
	gate := auth.NewGate(pgStore, sessions, logger)
	codec := encryption.NewEnvCodec()

	return api.Dependencies{
		RateLimit: mw.NewRateLimit(c, cfg.RateLimit.PerMinute, cfg.Session.CookieName).
			WithFailureLimit(cfg.RateLimit.AuthFailuresPerMinute),
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,

		HealthHandler: healthHandler(pgStore, c),
		Scopes:        handler.NewScopes(gate),
		Categories:    handler.NewCategories(gate, pgStore, c),
		Entries:       handler.NewEntries(gate, pgStore, codec, c),
		TwoFactor:     handler.NewTwoFactor(gate, pgStore, codec, c),
		Envs:          handler.NewEnvs(gate, pgStore, codec),
		AccessKeys:    handler.NewAccessKeys(gate, pgStore),
		Account:       handler.NewAccount(gate, pgStore, c),
		Stats:         handler.NewStats(gate, pgStore, c, cfg.Cache.StatsTTL),
		Export:        handler.NewExport(gate, pgStore),
	}, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("database health check failed", "error", err)
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("cache health check failed", "error", err)
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "One or more services degraded")
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
