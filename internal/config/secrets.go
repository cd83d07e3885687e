package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterGetter is the subset of the SSM client used to resolve secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveSecrets replaces secrets that are configured by reference with
// their values. It is a no-op when no parameter names are set.
func (a *App) ResolveSecrets(ctx context.Context, client ParameterGetter) error {
	if a.Policy.CodeSecretParam == "" {
		return nil
	}
	if client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		client = ssm.NewFromConfig(cfg)
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(a.Policy.CodeSecretParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get parameter %s: %w", a.Policy.CodeSecretParam, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return fmt.Errorf("parameter %s has no value", a.Policy.CodeSecretParam)
	}

	secret := strings.TrimSpace(*out.Parameter.Value)
	if err := validSecret(secret); err != nil {
		return err
	}
	a.Policy.CodeSecret = secret
	return nil
}
