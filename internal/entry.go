// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/arisezione/librosoci/internal/api"
	"github.com/arisezione/librosoci/internal/backup"
	"github.com/arisezione/librosoci/internal/mcpserver"
	"github.com/arisezione/librosoci/internal/reconcile"
	"github.com/arisezione/librosoci/internal/sse"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.String("database", cfg.DatabasePath()),
		slog.String("documents_root", cfg.DocumentsRoot()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize document store, registry, backup engine, and service.
	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	// Snapshot the database before anything touches it.
	if cfg.Backup.OnStartup {
		switch _, err := comps.svc.Backup(ctx, false); {
		case err == nil, errors.Is(err, backup.ErrUnchanged):
		default:
			logger.Warn("startup backup failed", slog.String("error", err.Error()))
		}
	}

	// Bring the registry in line with the files on disk.
	if report, err := comps.svc.Reconcile(ctx, reconcile.Options{Backfill: true}); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial reconcile finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("updated", report.Updated),
			slog.Int("missing", report.Missing))
	}

	// SSE broker, fed by service mutations.
	broker := sse.NewBroker(2 * time.Second)
	comps.svc.OnEvent(broker.PublishChange)

	// Build API router.
	apiRouter := api.NewRouter(comps.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := comps.reg.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the document tree and reconcile after external changes.
	g.Go(func() error {
		err := comps.rec.Watch(gCtx, reconcile.Options{ImportOrphans: true}, func(report reconcile.Report) {
			if report.Updated == 0 && report.Imported == 0 && report.Missing == 0 {
				return
			}
			if err := comps.svc.RefreshIndexFiles(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("index refresh failed", slog.String("error", err.Error()))
			}
			broker.PublishChange("updated", "")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("document watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		broker.Close()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdio with the given options. Logs go
// to stderr because stdout carries the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	logger.Info("MCP server starting on stdio",
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.String("database", cfg.DatabasePath()))

	return mcpserver.New(comps.svc).ServeStdio()
}
