package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsClient builds the Secrets Manager client. Tests replace it.
var newSecretsClient = func(ctx context.Context) (secretGetter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if os.Getenv("AWS_REGION") == "" {
		if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// resolveAWSSecretsManager resolves name, ARN, or name#field. The field form
// reads one key of a JSON secret, the layout Redshift and RDS credentials use
// (for example callrunner/redshift#password).
func resolveAWSSecretsManager(ref string) (string, error) {
	ctx := context.Background()
	client, err := newSecretsClient(ctx)
	if err != nil {
		return "", err
	}
	return readSecret(ctx, client, ref)
}

func readSecret(ctx context.Context, client secretGetter, ref string) (string, error) {
	name, field, hasField := strings.Cut(ref, "#")

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value (binary secrets not supported)", name)
	}
	if !hasField {
		return *out.SecretString, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", name, err)
	}
	switch v := fields[field].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("secret %q has no field %q", name, field)
	default:
		return fmt.Sprint(v), nil
	}
}
