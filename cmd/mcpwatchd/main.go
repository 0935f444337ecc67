package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpwatch/mcpwatch/internal/offline"
	"github.com/mcpwatch/mcpwatch/internal/server/handlers"
	"github.com/mcpwatch/mcpwatch/internal/server/middleware"
	"github.com/mcpwatch/mcpwatch/internal/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "mcpwatch.db", "Path to the primary SQLite database")
	statePath := flag.String("state", offline.DefaultStatePath, "Path to the offline state file")
	deadLetterPath := flag.String("deadletters", offline.DefaultDeadLetterPath, "Path to the dead-letter database")
	probeTimeout := flag.Duration("probe-timeout", offline.DefaultProbeTimeout, "Connectivity probe timeout")
	reconnectInterval := flag.Duration("reconnect-interval", offline.DefaultReconnectInterval, "Offline probe cadence")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger, *listenAddr, *dbPath, *statePath, *deadLetterPath, *probeTimeout, *reconnectInterval); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(
	logger *slog.Logger,
	listenAddr, dbPath, statePath, deadLetterPath string,
	probeTimeout, reconnectInterval time.Duration,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting mcpwatchd",
		"version", Version,
		"listen", listenAddr,
		"db", dbPath,
	)

	primary, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open primary database: %w", err)
	}
	defer func() {
		if err := primary.Close(); err != nil {
			logger.Error("failed to close primary database", "error", err)
		}
	}()

	manager, err := offline.NewManager(ctx, offline.Config{
		Primary:           primary,
		StatePath:         statePath,
		DeadLetterPath:    deadLetterPath,
		ProbeTimeout:      probeTimeout,
		ReconnectInterval: reconnectInterval,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start storage subsystem: %w", err)
	}

	healthHandler := handlers.NewHealthHandler(manager, logger)
	diagHandler := handlers.NewDiagnosticsHandler(manager, logger)
	entityHandler := handlers.NewEntityHandler(manager.Store(), logger)

	// A resync replays the queue and reloads every collection; keep
	// clients from hammering the trigger.
	resyncLimiter := middleware.NewRateLimiter(6, time.Minute, logger)
	defer resyncLimiter.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.HandleFunc("GET /api/v1/diagnostics", diagHandler.Diagnostics)
	mux.Handle("POST /api/v1/resync", resyncLimiter.Middleware()(http.HandlerFunc(diagHandler.Resync)))
	entityHandler.Register(mux)

	handler := middleware.Recovery(logger)(
		middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(mux),
	)

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	if err := manager.Close(shutdownCtx); err != nil {
		return fmt.Errorf("failed to close storage subsystem: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func printVersion() {
	fmt.Printf("mcpwatchd\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
