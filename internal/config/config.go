// Package config defines the runtime configuration of the recap services.
// Configuration is read once at cold start and never mutated afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
package config

import (
	"log/slog"
	"strings"
	"time"

	"recaps/internal/types"
)

// SecretString is an alias for the redacted secret type.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Binaries hand each component
// only the sub-struct it needs.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"recaps"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Recap         RecapConfig
	Email         EmailConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env.
	Build BuildInfo
}

// ServerConfig configures the ops HTTP API.
type ServerConfig struct {
	Port        string       `envconfig:"PORT" default:"8080"`
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	RecapBucket  string `envconfig:"RECAP_BUCKET" validate:"required"`
	PageQueueURL string `envconfig:"PAGE_QUEUE_URL" validate:"required,url"`

	// LocalStack support; empty in deployed environments.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// RecapConfig tunes report generation.
type RecapConfig struct {
	PageSize          int                 `envconfig:"RECAP_PAGE_SIZE" default:"100" validate:"min=1,max=1000"`
	SnapshotBatchSize int                 `envconfig:"RECAP_SNAPSHOT_BATCH_SIZE" default:"300" validate:"min=1,max=5000"`
	CacheControl      string              `envconfig:"RECAP_CACHE_CONTROL" default:"max-age=2628000"`
	BlobGzip          bool                `envconfig:"RECAP_BLOB_GZIP" default:"false"`
	PublicURL         string              `envconfig:"RECAP_PUBLIC_URL" default:"https://getbrickd.com/user-recaps" validate:"url"`
	ArtifactScope     types.ArtifactScope `envconfig:"RECAP_ARTIFACT_SCOPE" default:"report" validate:"oneof=report period"`
	StaleAfter        time.Duration       `envconfig:"RECAP_STALE_AFTER" default:"30m"`
}

// EmailConfig configures recap notification delivery through Loops.
type EmailConfig struct {
	Enabled           bool          `envconfig:"EMAIL_ENABLED" default:"true"`
	LoopsAPIKey       SecretString  `envconfig:"LOOPS_API_KEY" validate:"required_if=Enabled true"`
	LoopsBaseURL      string        `envconfig:"LOOPS_BASE_URL" default:"https://app.loops.so/api/v1" validate:"url"`
	EventStandard     string        `envconfig:"EMAIL_EVENT_STANDARD" default:"monthly-recaps"`
	EventYearInReview string        `envconfig:"EMAIL_EVENT_YEAR_IN_REVIEW" default:"year-in-review"`
	RequestTimeout    time.Duration `envconfig:"EMAIL_REQUEST_TIMEOUT" default:"10s"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Recaps"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// SlogLevel converts LogLevel into a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsLocal reports whether the process runs outside AWS.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
