// Package main is the entrypoint for the Recaps Lambda function.
//
// One function serves the page queue (SQS batches with partial batch
// failure reporting) and direct invocations from operators and schedulers.
// This file handles cold-start wiring and delegates everything else to
// internal/ingress.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"recaps/internal/app"
)

func main() {
	bootLog := app.NewLogger(slog.LevelInfo)
	bootLog.Info("Recaps Lambda initializing (cold start)")

	cfg, err := app.LoadConfig()
	if err != nil {
		bootLog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.SlogLevel()).With("service", cfg.Service)
	logger.Info("configuration loaded", "environment", cfg.Environment, "build", cfg.Build)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to wire dependencies", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("Recaps Lambda initialized",
		"recap_bucket", cfg.AWS.RecapBucket,
		"page_queue", cfg.AWS.PageQueueURL,
		"page_size", cfg.Recap.PageSize,
		"email_enabled", cfg.Email.Enabled,
	)

	// Local mode: read one event from stdin instead of starting the runtime.
	// Usage: echo '{"reportId":7}' | APP_ENV=local go run ./cmd/recaps
	if cfg.IsLocal() {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("No input received on stdin")
			os.Exit(1)
		}
		out, err := a.Handler.Handle(ctx, json.RawMessage(payload))
		if err != nil {
			logger.Error("Handler execution failed", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	lambda.Start(a.Handler.Handle)
}
