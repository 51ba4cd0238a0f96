package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recaps/internal/types"
)

type fakeSecretProvider struct {
	values map[string]string
	err    error
	asked  []string
}

func (p *fakeSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.asked = append(p.asked, keys...)
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// mapEnv is an in-memory environment for exercising SSM resolution.
type mapEnv map[string]string

func (m mapEnv) osEnv() osEnv {
	return osEnv{
		lookup: func(k string) (string, bool) { v, ok := m[k]; return v, ok },
		set:    func(k, v string) error { m[k] = v; return nil },
		environ: func() []string {
			out := make([]string, 0, len(m))
			for k, v := range m {
				out = append(out, k+"="+v)
			}
			return out
		},
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("DATABASE_URL", "postgres://recaps:pw@localhost:5432/recaps")
	t.Setenv("RECAP_BUCKET", "brickd-user-recaps")
	t.Setenv("PAGE_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/recap-pages")
	t.Setenv("LOOPS_API_KEY", "loops-test-key")
}

func TestLoadConfig_LocalDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.True(t, cfg.IsLocal())
	assert.Equal(t, 100, cfg.Recap.PageSize)
	assert.Equal(t, 300, cfg.Recap.SnapshotBatchSize)
	assert.Equal(t, "max-age=2628000", cfg.Recap.CacheControl)
	assert.Equal(t, types.ArtifactScopeReport, cfg.Recap.ArtifactScope)
	assert.Equal(t, 30*time.Minute, cfg.Recap.StaleAfter)
	assert.Equal(t, "monthly-recaps", cfg.Email.EventStandard)
	assert.Equal(t, "loops-test-key", cfg.Email.LoopsAPIKey.Unmask())
	assert.Equal(t, "Recaps", cfg.Observability.MetricNamespace)
	assert.Equal(t, "dev", cfg.Build.Version)
}

func TestLoadConfig_MissingBucket(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RECAP_BUCKET", "")

	_, err := LoadConfig(nil)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfig_LoopsKeyOptionalWhenEmailDisabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOOPS_API_KEY", "")
	t.Setenv("EMAIL_ENABLED", "false")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.False(t, cfg.Email.Enabled)
}

func TestLoadConfig_InvalidArtifactScope(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RECAP_ARTIFACT_SCOPE", "global")

	_, err := LoadConfig(nil)
	require.Error(t, err)
}

func TestConfig_SlogLevel(t *testing.T) {
	c := &Config{LogLevel: "DEBUG"}
	assert.Equal(t, "DEBUG", c.SlogLevel().String())
	c.LogLevel = "nonsense"
	assert.Equal(t, "INFO", c.SlogLevel().String())
}

func TestResolveSSMParams_ExportsValues(t *testing.T) {
	env := mapEnv{
		"DATABASE_URL_SSM_PARAM":  "/prod/recaps/database_url",
		"LOOPS_API_KEY_SSM_PARAM": "/prod/recaps/loops_api_key",
	}
	provider := &fakeSecretProvider{values: map[string]string{
		"/prod/recaps/database_url":  "postgres://prod",
		"/prod/recaps/loops_api_key": "lk_prod",
	}}

	require.NoError(t, resolveSSMParams(provider, env.osEnv()))
	assert.Equal(t, "postgres://prod", env["DATABASE_URL"])
	assert.Equal(t, "lk_prod", env["LOOPS_API_KEY"])
	assert.Len(t, provider.asked, 2)
}

func TestResolveSSMParams_EnvironmentWins(t *testing.T) {
	env := mapEnv{
		"DATABASE_URL":           "postgres://override",
		"DATABASE_URL_SSM_PARAM": "/prod/recaps/database_url",
	}
	provider := &fakeSecretProvider{}

	require.NoError(t, resolveSSMParams(provider, env.osEnv()))
	assert.Equal(t, "postgres://override", env["DATABASE_URL"])
	assert.Empty(t, provider.asked)
}

func TestResolveSSMParams_MissingParameter(t *testing.T) {
	env := mapEnv{"LOOPS_API_KEY_SSM_PARAM": "/prod/recaps/loops_api_key"}

	err := resolveSSMParams(&fakeSecretProvider{values: map[string]string{}}, env.osEnv())
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrSSMResolution, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "LOOPS_API_KEY")
}

func TestResolveSSMParams_RequiresProvider(t *testing.T) {
	env := mapEnv{"DATABASE_URL_SSM_PARAM": "/prod/recaps/database_url"}

	err := resolveSSMParams(nil, env.osEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestResolveSSMParams_ProviderFailure(t *testing.T) {
	env := mapEnv{"DATABASE_URL_SSM_PARAM": "/prod/recaps/database_url"}
	boom := errors.New("throttled")

	err := resolveSSMParams(&fakeSecretProvider{err: boom}, env.osEnv())
	assert.ErrorIs(t, err, boom)
}
