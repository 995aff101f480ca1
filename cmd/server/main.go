/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags > environment > .env > defaults)
  2. Open the configured store (SQLite, PostgreSQL or in-memory)
  3. Create API handler with dependencies
  4. Load a demo scenario or seed catalog if requested
  5. Start the year-end scheduler if enabled
  6. Configure HTTP router and start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run in memory with demo data
  ./server -driver=memory -scenario=approval-queue

  # Run against PostgreSQL with bearer tokens
  DATABASE_URL=postgres://localhost/leave JWT_SECRET=s3cret ./server -driver=postgres

SEE ALSO:
  - config/config.go: All settings
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
*/
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

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave/store"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	handler := api.NewHandler(st, logger)

	if cfg.Scenario != "" {
		if err := handler.LoadScenarioByID(ctx, cfg.Scenario); err != nil {
			return err
		}
	}
	if cfg.SeedFile != "" {
		if err := loadSeedFile(ctx, handler, cfg.SeedFile); err != nil {
			return err
		}
	}

	if cfg.YearEndScheduler {
		scheduler := api.NewYearEndScheduler(handler.YearEnd, logger)
		scheduler.Interval = cfg.YearEndInterval
		scheduler.Start()
		defer scheduler.Stop()
	}

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   cfg.JWTSecret,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "driver", cfg.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (api.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		st, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case config.DriverMemory:
		return store.NewMemory(), func() {}, nil
	default:
		st, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
}

func loadSeedFile(ctx context.Context, handler *api.Handler, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	catalog, err := handler.PolicyFactory.ParseCatalog(data)
	if err != nil {
		return fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	if err := handler.LoadCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}
	slog.Info("seed file loaded", "path", path,
		"employees", len(catalog.Employees), "policies", len(catalog.Policies), "years", len(catalog.Years))
	return nil
}
