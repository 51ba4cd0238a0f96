// Package main runs the operator HTTP API: report and page status plus a
// synchronous invoke endpoint that accepts the Lambda's direct payloads.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"recaps/internal/api"
	"recaps/internal/app"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ops api exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.SlogLevel()).With("service", cfg.Service+"-ops")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := api.NewServer(api.Server{
		Reports:   a.Reports,
		Pages:     a.Pages,
		Artifacts: a.Artifacts,
		Invoker:   a.Handler,
		Probes:    []api.HealthProbe{api.PingProbe{Label: "database", Target: a.Pool}},
		AdminKey:  cfg.Server.AdminAPIKey,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr, "build", cfg.Build)
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
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("ops api stopped")
	return nil
}
