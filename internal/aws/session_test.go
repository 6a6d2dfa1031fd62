package aws

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func isolateSharedConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ENDPOINT_URL", "")
}

func TestLoadConfig(t *testing.T) {
	isolateSharedConfig(t)

	cfg, err := LoadConfig(context.Background(), SessionOptions{
		Region:      "eu-west-1",
		EndpointURL: "http://localhost:4566",
		MaxAttempts: 4,
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q", cfg.Region)
	}
	if aws.ToString(cfg.BaseEndpoint) != "http://localhost:4566" {
		t.Errorf("BaseEndpoint = %v", cfg.BaseEndpoint)
	}
	if got := cfg.Retryer().MaxAttempts(); got != 4 {
		t.Errorf("MaxAttempts = %d, want 4", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateSharedConfig(t)

	cfg, err := LoadConfig(context.Background(), SessionOptions{Region: "us-east-1"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Retryer().MaxAttempts(); got != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", got, DefaultMaxAttempts)
	}
	if cfg.BaseEndpoint != nil {
		t.Errorf("BaseEndpoint = %v, want nil", *cfg.BaseEndpoint)
	}
}
