package config

import (
	"context"
	"os"
)

// SecretProvider resolves parameter paths to plaintext values. Missing keys
// are omitted from the result rather than reported as errors.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// EnvVarProvider resolves each key as an environment variable name. It backs
// local runs where secrets come from the shell or a .env file.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = v
		}
	}
	return out, nil
}
