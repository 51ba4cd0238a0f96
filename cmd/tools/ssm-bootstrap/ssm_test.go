package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Doubles ---

type fakeSSM struct {
	params map[string]string
	puts   []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (f *fakeSSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	name := aws.ToString(in.Name)
	if _, ok := f.params[name]; ok && !aws.ToBool(in.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{}
	}
	f.params[name] = aws.ToString(in.Value)
	f.puts = append(f.puts, name)
	return &ssm.PutParameterOutput{}, nil
}

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func newManager(f *fakeSSM) *SSMManager {
	return NewSSMManager(f, "dev", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSync_FreshEnvironment(t *testing.T) {
	f := &fakeSSM{params: map[string]string{}}
	results, err := newManager(f).Sync(context.Background(), lookupFrom(map[string]string{
		"DATABASE_URL": "postgres://u:p@db/recaps",
	}), false)
	require.NoError(t, err)

	actions := map[string]string{}
	for _, r := range results {
		actions[r.EnvVar] = r.Action
	}
	assert.Equal(t, map[string]string{
		"DATABASE_URL":  "written",
		"LOOPS_API_KEY": "skipped",
		"ADMIN_API_KEY": "generated",
	}, actions)
	assert.Equal(t, "postgres://u:p@db/recaps", f.params["/dev/recaps/database/url"])
	assert.Len(t, f.params["/dev/recaps/ops/admin_api_key"], 64)
}

func TestSync_KeepsExistingUnlessOverwrite(t *testing.T) {
	f := &fakeSSM{params: map[string]string{
		"/dev/recaps/database/url":      "old",
		"/dev/recaps/ops/admin_api_key": "admin",
	}}
	env := lookupFrom(map[string]string{"DATABASE_URL": "new"})

	_, err := newManager(f).Sync(context.Background(), env, false)
	require.NoError(t, err)
	assert.Equal(t, "old", f.params["/dev/recaps/database/url"])
	assert.Empty(t, f.puts)

	_, err = newManager(f).Sync(context.Background(), env, true)
	require.NoError(t, err)
	assert.Equal(t, "new", f.params["/dev/recaps/database/url"])
}

func TestSync_MissingRequiredSecret(t *testing.T) {
	f := &fakeSSM{params: map[string]string{}}
	_, err := newManager(f).Sync(context.Background(), lookupFrom(nil), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
