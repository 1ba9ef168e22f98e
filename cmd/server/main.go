/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the coverage engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize logger and SQLite store
  3. Import the lifecycle feed, if one is configured
  4. Create the coverage service, API handler and scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  --port                HTTP server port (default: 8080)
  --db                  SQLite database path (default: coverage.db)
                        Use ":memory:" for in-memory database
  --log-mode            development | production
  --lifecycle-file      YAML lifecycle feed imported at startup
  --schedule-interval   Background reconcile interval (0 disables)
  --sync-program        Program synced on every scheduler tick (repeatable)
  --sync-dry-run        Scheduled syncs only report
  --use-eos-for-missing Fill missing lifecycle dates from end of support
  --migration-month     Replacement planning cutoff month

ENVIRONMENT:
  Every flag has a COVERAGE_* counterpart; see config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server --db=./data/coverage.db

  # Run in memory, reconcile every 10 minutes
  ./server --db=:memory: --schedule-interval=10m

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration layers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warp/coverage-engine/api"
	"github.com/warp/coverage-engine/config"
	"github.com/warp/coverage-engine/coverage"
	"github.com/warp/coverage-engine/inventory"
	"github.com/warp/coverage-engine/lifecycle"
	"github.com/warp/coverage-engine/logger"
	"github.com/warp/coverage-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	lc := cfg.Lifecycle()
	if cfg.LifecycleFile != "" {
		if err := importFeed(store, cfg.LifecycleFile, lc, log); err != nil {
			// The server still runs on whatever lifecycle data is stored.
			log.Warn("lifecycle feed import failed", "file", cfg.LifecycleFile, "error", err)
		}
	}

	svc := coverage.NewService(store, coverage.Options{
		Clock:     inventory.SystemClock{},
		Logger:    log,
		Lifecycle: lc,
	})

	scheduler := api.NewScheduler(svc, store, log)
	scheduler.CheckInterval = cfg.ScheduleInterval
	for _, id := range cfg.SyncPrograms {
		scheduler.Programs = append(scheduler.Programs, inventory.ProgramID(id))
	}
	scheduler.SyncOptions.DryRun = cfg.SyncDryRun
	scheduler.Start()

	router := api.NewRouter(api.NewHandler(svc, store, log))

	// WriteTimeout must outlast the per-request timeout so slow syncs still
	// get their response written.
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: api.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr(), "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func importFeed(store *sqlite.Store, path string, cfg lifecycle.Config, log *logger.Logger) error {
	feed, err := lifecycle.LoadFeed(path)
	if err != nil {
		return err
	}
	report, err := lifecycle.NewImporter(store, cfg, log).Import(context.Background(), feed)
	if err != nil {
		return err
	}
	log.Info("lifecycle feed applied", "file", path, "created", report.Created, "updated", report.Updated,
		"removed", report.Removed, "skipped", report.Skipped, "failed", report.Failed)
	return nil
}
