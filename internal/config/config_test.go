package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Match.Tolerance)
	assert.Equal(t, 40.0, cfg.Match.ConfidenceFloor)
	assert.Equal(t, 120*time.Second, cfg.Policy.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Policy.CodeStep)
	assert.Equal(t, 300*time.Second, cfg.Presence.Timeout)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MATCH_TOLERANCE", "0.5")
	t.Setenv("COOLDOWN", "90s")
	t.Setenv("PRESENCE_DISCOVERY", "static")
	t.Setenv("PRESENCE_STATIC_DEVICES", "aa:bb,cc:dd")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Match.Tolerance)
	assert.Equal(t, 90*time.Second, cfg.Policy.Cooldown)
	assert.Equal(t, []string{"aa:bb", "cc:dd"}, cfg.Presence.Devices)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("COOLDOWN", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*App)
		want   error
	}{
		{"bad driver", func(a *App) { a.DatabaseDriver = "mysql" }, ErrInvalidDriver},
		{"bad metric", func(a *App) { a.Match.Metric = "manhattan" }, ErrInvalidMetric},
		{"zero tolerance", func(a *App) { a.Match.Tolerance = 0 }, ErrInvalidTolerance},
		{"floor too high", func(a *App) { a.Match.ConfidenceFloor = 120 }, ErrInvalidFloor},
		{"bad discovery", func(a *App) { a.Presence.Discovery = "mdns" }, ErrInvalidDiscovery},
		{"zero cooldown", func(a *App) { a.Policy.Cooldown = 0 }, ErrInvalidDuration},
		{"bad secret", func(a *App) { a.Policy.CodeSecret = "not base32!" }, ErrInvalidSecret},
		{"empty secret", func(a *App) { a.Policy.CodeSecret = "" }, ErrInvalidSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidate_SecretByReferenceSkipsInlineCheck(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Policy.CodeSecret = ""
	cfg.Policy.CodeSecretParam = "/attendguard/code-secret"

	assert.NoError(t, cfg.Validate())
}

type fakeSSM struct {
	value string
	err   error
	name  string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.name = aws.ToString(in.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(f.value)}}, nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := App{Policy: Policy{CodeSecretParam: "/attendguard/code-secret"}}
	client := &fakeSSM{value: " GEZDGNBVGY3TQOJQ \n"}

	require.NoError(t, cfg.ResolveSecrets(context.Background(), client))
	assert.Equal(t, "/attendguard/code-secret", client.name)
	assert.Equal(t, "GEZDGNBVGY3TQOJQ", cfg.Policy.CodeSecret)
}

func TestResolveSecrets_Errors(t *testing.T) {
	cfg := App{Policy: Policy{CodeSecretParam: "/missing"}}
	assert.Error(t, cfg.ResolveSecrets(context.Background(), &fakeSSM{err: errors.New("access denied")}))

	cfg = App{Policy: Policy{CodeSecretParam: "/bad"}}
	assert.ErrorIs(t, cfg.ResolveSecrets(context.Background(), &fakeSSM{value: "???"}), ErrInvalidSecret)
}

func TestResolveSecrets_NoParam(t *testing.T) {
	cfg := App{Policy: Policy{CodeSecret: "JBSWY3DPEHPK3PXP"}}
	require.NoError(t, cfg.ResolveSecrets(context.Background(), nil))
	assert.Equal(t, "JBSWY3DPEHPK3PXP", cfg.Policy.CodeSecret)
}
