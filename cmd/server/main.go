// Package main is the entrypoint for the ErrorSink API server.
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

	"github.com/robfig/cron/v3"

	"github.com/communitycar/errorsink/internal/api"
	"github.com/communitycar/errorsink/internal/api/handler"
	mw "github.com/communitycar/errorsink/internal/api/middleware"
	"github.com/communitycar/errorsink/internal/api/response"
	"github.com/communitycar/errorsink/internal/cache"
	"github.com/communitycar/errorsink/internal/config"
	"github.com/communitycar/errorsink/internal/errorlog"
	"github.com/communitycar/errorsink/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "retention_days", cfg.Retention.Days)

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
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
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

	// 5. Create store and core service
	pgStore := store.NewPostgresStore(pool)
	svc := errorlog.NewService(pgStore, redisCache)

	// 6. Schedule the retention sweep
	scheduler := cron.New()
	if cfg.Retention.Days > 0 {
		_, err := scheduler.AddFunc(cfg.Retention.Schedule, func() {
			sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := svc.CleanupOldErrors(sweepCtx, cfg.Retention.Days); err != nil {
				slog.Error("scheduled retention sweep failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule retention sweep: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		slog.Info("retention sweep scheduled",
			"schedule", cfg.Retention.Schedule, "retention_days", cfg.Retention.Days)
	}

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		RecordHandler:  handler.NewRecordHandler(svc),
		ListErrors:     handler.NewListErrorsHandler(svc),
		GetError:       handler.NewGetErrorHandler(svc),
		ResolveHandler: handler.NewResolveHandler(svc),
		DeleteHandler:  handler.NewDeleteHandler(svc),

		StatsHandler:      handler.NewStatsHandler(svc),
		StatsRangeHandler: handler.NewStatsRangeHandler(svc),

		BoundaryErrors:  handler.NewBoundaryErrorsHandler(svc),
		RecoverBoundary: handler.NewRecoverBoundaryHandler(svc),

		CleanupHandler:   handler.NewCleanupHandler(svc),
		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
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

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
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
