// Package main is the entry point for the upkeep API server.
//
// It loads configuration, opens the store, wires the domain services and
// the HTTP handlers onto the core chassis, and serves until SIGINT or
// SIGTERM. Shutdown drains the listener before the store is closed.
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

	"upkeep/internal/api/handlers"
	"upkeep/internal/app"
	"upkeep/internal/config"
	"upkeep/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("upkeep API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}

	srv, err := buildServer(a)
	if err != nil {
		a.Close()
		return err
	}

	go func() {
		if err := a.Metrics.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("metrics flusher stopped", "error", err)
		}
	}()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// buildServer mounts the v1 handlers on the core chassis.
func buildServer(a *app.App) (*core.Server, error) {
	cfg := a.Config
	srv, err := core.NewServer(cfg, a.Store, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = a.Authenticator
	srv.Metrics = a.Metrics
	if cfg.Security.RateLimitRPS > 0 {
		srv.RateLimitStore = core.NewMemoryRateLimitStore(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, handlers.Register(handlers.Deps{
		Store:     a.Store,
		Runner:    a.Runner,
		Approvals: a.Approvals,
		Notifier:  a.Notifier,
		Tokens:    a.Authenticator,
		Clock:     a.Clock,
		Guard:     srv.RequireRole,
		Validator: srv.Validator,
		Logger:    a.Logger,
	}))

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves until ctx is cancelled or the listener fails, then
// shuts down within cfg.Server.ShutdownTimeout.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Closes the store.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
