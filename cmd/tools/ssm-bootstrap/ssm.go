package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	ssmOperationTimeout = 15 * time.Second
	tokenByteLength     = 32
)

// SSMClient is the subset of the SSM API the tool uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// secret is one SecureString the service resolves through *_SSM_PARAM.
type secret struct {
	EnvVar   string // variable the loader exports, e.g. DATABASE_URL
	Key      string // path suffix under /{env}/recaps/
	Generate bool   // created locally when absent
	Optional bool
}

var secrets = []secret{
	{EnvVar: "DATABASE_URL", Key: "database/url"},
	{EnvVar: "LOOPS_API_KEY", Key: "email/loops_api_key", Optional: true},
	{EnvVar: "ADMIN_API_KEY", Key: "ops/admin_api_key", Generate: true},
}

// SSMManager writes the service secrets under /{env}/recaps/.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

func NewSSMManager(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, env: env, logger: logger}
}

// Path returns the absolute parameter name for key.
func (m *SSMManager) Path(key string) string {
	return fmt.Sprintf("/%s/recaps/%s", m.env, key)
}

// Exists reports whether the parameter at path is present.
func (m *SSMManager) Exists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

// PutSecret writes a SecureString. The value is never logged.
func (m *SSMManager) PutSecret(ctx context.Context, path, value string, overwrite bool) error {
	if value == "" {
		return fmt.Errorf("SSM parameter value must not be empty for path %q", path)
	}
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("SSM parameter %q already exists: %w", path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}
	m.logger.Info("SSM parameter written", "path", path, "value_length", len(value))
	return nil
}

// Result describes what Sync did for one secret.
type Result struct {
	EnvVar string
	Path   string
	Action string // written, generated, kept, skipped
}

// Sync writes every secret whose value is available. Values come from
// lookup (normally the process environment); generated secrets are created
// when absent from both lookup and SSM. Existing parameters are kept
// unless overwrite is set.
func (m *SSMManager) Sync(ctx context.Context, lookup func(string) (string, bool), overwrite bool) ([]Result, error) {
	out := make([]Result, 0, len(secrets))
	for _, s := range secrets {
		path := m.Path(s.Key)
		res := Result{EnvVar: s.EnvVar, Path: path}

		exists, err := m.Exists(ctx, path)
		if err != nil {
			return out, err
		}

		value, ok := lookup(s.EnvVar)
		switch {
		case exists && !overwrite:
			res.Action = "kept"
		case ok && value != "":
			if err := m.PutSecret(ctx, path, value, overwrite); err != nil {
				return out, err
			}
			res.Action = "written"
		case s.Generate:
			token, err := generateToken()
			if err != nil {
				return out, err
			}
			if err := m.PutSecret(ctx, path, token, overwrite); err != nil {
				return out, err
			}
			res.Action = "generated"
		case s.Optional:
			res.Action = "skipped"
		default:
			return out, fmt.Errorf("%s is not set and %s does not exist", s.EnvVar, path)
		}
		out = append(out, res)
	}
	return out, nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
