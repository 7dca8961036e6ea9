// Package main provides the entry point for the episode-drop server.
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

	"github.com/maauso/episode-drop/internal/bootstrap"
	"github.com/maauso/episode-drop/internal/config"
	"github.com/maauso/episode-drop/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadDotEnv()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting episode-drop",
		slog.Int("port", cfg.Port),
		slog.String("public_url", cfg.PublicURL),
		slog.String("storage_backend", string(cfg.Backend)),
		slog.String("listing_mode", string(cfg.ListingMode)),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.Bool("oauth_enabled", cfg.OAuthEnabled()),
		slog.Bool("metrics_enabled", cfg.MetricsEnabled),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	opts := []server.HandlerOption{server.WithCookieSecure(cfg.CookieSecure)}
	if deps.OAuth != nil {
		opts = append(opts, server.WithOAuth(deps.OAuth))
	}
	handlers := server.NewHandlers(deps.Service, logger, opts...)

	routerCfg := server.DefaultConfig()
	routerCfg.AllowedOrigins = cfg.AllowedOrigins
	routerCfg.Metrics = deps.Metrics
	routerCfg.StorageObjects = deps.StorageObjects
	router := server.NewRouter(handlers, logger, routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// No read or write timeout: direct uploads to local storage stream large files.
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
