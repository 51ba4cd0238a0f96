// Package main implements recap-runner, a CLI that builds direct-invocation
// payloads for the Recaps Lambda and optionally executes them locally.
//
// Usage:
//
//	go run ./cmd/tools/recap-runner -create 2025-09-01
//	go run ./cmd/tools/recap-runner -report 7
//	go run ./cmd/tools/recap-runner -report 7 -page-offset 200 -rebuild
//	go run ./cmd/tools/recap-runner -report 7 -incremental
//	go run ./cmd/tools/recap-runner -report 7 -sweep -stale-minutes 15
//	go run ./cmd/tools/recap-runner -user 42 -send-email
//	go run ./cmd/tools/recap-runner -dry-run -report 7 -emails
//
// Configuration comes from the environment, or a .env file via godotenv.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"recaps/internal/app"
)

func main() {
	var o options
	flag.StringVar(&o.create, "create", "", "Create a report for the period containing this date (YYYY-MM-DD)")
	flag.StringVar(&o.kind, "kind", "", "Report kind: STANDARD or YEAR_IN_REVIEW")
	flag.Int64Var(&o.report, "report", 0, "Report id")
	flag.Int64Var(&o.user, "user", 0, "Generate one user's recap (test mode)")
	flag.IntVar(&o.pageOffset, "page-offset", -1, "Process the page at this offset")
	flag.Int64Var(&o.logID, "log", 0, "Process the page with this page log id")
	flag.BoolVar(&o.rebuild, "rebuild", false, "Recompute pages that already completed")
	flag.BoolVar(&o.incremental, "incremental", false, "Process the next queued page in-process")
	flag.BoolVar(&o.emails, "emails", false, "Run the email phase")
	flag.BoolVar(&o.sweep, "sweep", false, "Republish stale pages")
	flag.IntVar(&o.staleMinutes, "stale-minutes", 0, "Staleness threshold for -sweep in minutes")
	flag.BoolVar(&o.sendEmail, "send-email", false, "With -user, send the email after generating")
	dryRun := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: recap-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Build and run Recaps direct invocations locally.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	payload, _, err := buildPayload(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println(string(payload))
		return
	}

	logger := app.NewLogger(slog.LevelInfo)
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded (this is fine in production)", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, payload, logger); err != nil {
		logger.Error("invocation failed", "payload", string(payload), "error", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, payload []byte, logger *slog.Logger) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Handler.Direct(ctx, payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
