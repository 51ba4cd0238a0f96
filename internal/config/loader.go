package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError wraps a loading failure with its category.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks pointer variables: DATABASE_URL_SSM_PARAM holds the
// parameter path whose value becomes DATABASE_URL.
const ssmParamSuffix = "_SSM_PARAM"

const localEnv = "local"

const ssmResolveTimeout = 30 * time.Second

// osEnv is the slice of the process environment the loader touches.
type osEnv struct {
	lookup  func(key string) (string, bool)
	set     func(key, value string) error
	environ func() []string
}

func processEnv() osEnv {
	return osEnv{lookup: os.LookupEnv, set: os.Setenv, environ: os.Environ}
}

// LoadConfig loads, resolves and validates the configuration.
//
//  1. A .env file is loaded when present; it never overrides set variables.
//  2. Outside APP_ENV=local, *_SSM_PARAM pointers are resolved through
//     provider and exported into the environment.
//  3. envconfig populates Config and validator checks it.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfig(provider, processEnv())
}

func loadConfig(provider SecretProvider, env osEnv) (*Config, error) {
	time.Local = time.UTC
	_ = godotenv.Load()

	if appEnv, _ := env.lookup("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return &cfg, nil
}

// ResolveSecrets runs only the SSM step. Lambda entry points call it before
// LoadConfig when they construct the provider from a bare region.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, processEnv())
}

// resolveSSMParams exports the value of every *_SSM_PARAM pointer whose
// target variable is not already set.
func resolveSSMParams(provider SecretProvider, env osEnv) error {
	targets := make(map[string]string) // ssm path -> env var
	for _, entry := range env.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := env.lookup(target); set {
			continue
		}
		targets[path] = target
	}
	if len(targets) == 0 {
		return nil
	}

	paths := make([]string, 0, len(targets))
	for p := range targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if provider == nil {
		names := make([]string, 0, len(paths))
		for _, p := range paths {
			names = append(names, targets[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "a SecretProvider is required to resolve " + strings.Join(names, ", "),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, targets[p])
			continue
		}
		if err := env.set(targets[p], value); err != nil {
			return &ConfigError{Type: ErrSSMResolution, Message: "failed to export " + targets[p], Err: err}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "SSM parameters not found for: " + strings.Join(missing, ", "),
		}
	}
	return nil
}
