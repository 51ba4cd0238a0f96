// Package main implements ssm-bootstrap, which populates SSM Parameter
// Store with the secrets the Recaps functions resolve at cold start and
// prints the *_SSM_PARAM variables to configure on them.
//
// Usage:
//
//	DATABASE_URL=postgres://... LOOPS_API_KEY=... go run ./cmd/tools/ssm-bootstrap -env=dev
//	go run ./cmd/tools/ssm-bootstrap -env=prod -region=us-east-1 -overwrite
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
)

var validEnvironments = map[string]bool{"dev": true, "staging": true, "prod": true}

func main() {
	env := flag.String("env", "", "Target environment: dev, staging or prod")
	region := flag.String("region", "us-east-1", "AWS region")
	profile := flag.String("profile", "", "AWS shared config profile")
	overwrite := flag.Bool("overwrite", false, "Replace parameters that already exist")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if !validEnvironments[*env] {
		fmt.Fprintf(os.Stderr, "error: -env must be dev, staging or prod\n")
		os.Exit(1)
	}
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(*region)}
	if *profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(*profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	mgr := NewSSMManager(ssm.NewFromConfig(awsCfg), *env, logger)
	results, err := mgr.Sync(ctx, os.LookupEnv, *overwrite)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("# Function environment")
	for _, r := range results {
		logger.Info("secret", "env_var", r.EnvVar, "path", r.Path, "action", r.Action)
		if r.Action != "skipped" {
			fmt.Printf("%s_SSM_PARAM=%s\n", r.EnvVar, r.Path)
		}
	}
}
