// Package app builds the production object graph shared by every binary:
// database pool, AWS clients, the recap service and the ingress handler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"recaps/internal/config"
	"recaps/internal/db"
	"recaps/internal/external"
	"recaps/internal/ingress"
	"recaps/internal/metrics"
	"recaps/internal/queue"
	"recaps/internal/recap"
	"recaps/internal/storage"
)

const defaultRegion = "us-east-1"

// App is the wired application.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Reports   *db.ReportRepository
	Pages     *db.PageLogRepository
	Artifacts *db.ArtifactRepository
	Service   *recap.Service
	Handler   *ingress.Handler
}

// NewLogger returns the JSON logger used by every binary.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// LoadConfig loads configuration, resolving *_SSM_PARAM secrets through SSM
// outside APP_ENV=local.
func LoadConfig() (*config.Config, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultRegion
	}
	return config.LoadConfig(config.NewSSMProvider(region))
}

// Build connects to the database and AWS and assembles the service.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: connecting to database: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: loading AWS config: %w", err)
	}

	endpoint := cfg.AWS.EndpointURL
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	var notifier recap.Notifier
	if cfg.Email.Enabled {
		notifier = external.NewLoopsClient(&http.Client{Timeout: cfg.Email.RequestTimeout}, external.LoopsClientConfig{
			APIKey:  cfg.Email.LoopsAPIKey.Unmask(),
			BaseURL: cfg.Email.LoopsBaseURL,
			Logger:  logger,
		})
	} else {
		logger.Warn("EMAIL_ENABLED=false: email events are logged, not sent")
		notifier = external.NewStubNotifier(logger)
	}

	var recorder recap.Metrics = recap.NopMetrics{}
	if cfg.Observability.EnableMetrics {
		recorder = metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	reports := db.NewReportRepository(pool)
	pages := db.NewPageLogRepository(pool)
	artifacts := db.NewArtifactRepository(pool, cfg.Recap.ArtifactScope)
	source := db.NewSourceRepository(pool)

	svc := recap.NewService(recap.Deps{
		Reports:   reports,
		Audience:  db.NewAudienceRepository(pool),
		Source:    source,
		Pages:     pages,
		Artifacts: artifacts,
		Blobs: storage.NewS3Store(s3Client, cfg.AWS.RecapBucket, storage.S3Options{
			CacheControl: cfg.Recap.CacheControl,
			Gzip:         cfg.Recap.BlobGzip,
		}, logger),
		Publisher: queue.NewPagePublisher(sqsClient, cfg.AWS.PageQueueURL, logger),
		Computer:  recap.NewStatsComputer(source),
		Notifier:  notifier,
		Metrics:   recorder,
		Log:       logger,
	}, recap.Options{
		PageSize:          cfg.Recap.PageSize,
		SnapshotBatchSize: cfg.Recap.SnapshotBatchSize,
		StaleAfter:        cfg.Recap.StaleAfter,
		PublicURL:         cfg.Recap.PublicURL,
		EventStandard:     cfg.Email.EventStandard,
		EventYearInReview: cfg.Email.EventYearInReview,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Reports:   reports,
		Pages:     pages,
		Artifacts: artifacts,
		Service:   svc,
		Handler:   ingress.NewHandler(svc, logger),
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}
