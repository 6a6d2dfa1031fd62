package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// resolveVault reads one key of a KV secret. The reference is path#key,
// for example secret/data/callrunner#dsn. VAULT_ADDR and VAULT_TOKEN must be
// set; VAULT_NAMESPACE is honored when present.
func resolveVault(ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return "", fmt.Errorf("invalid Vault reference %q: expected path#key", ref)
	}

	client, err := vaultClient()
	if err != nil {
		return "", err
	}

	secret, err := client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("reading Vault secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found at %s", path)
	}
	return secretField(secret.Data, path, key)
}

func vaultClient() (*api.Client, error) {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		return nil, fmt.Errorf("VAULT_ADDR environment variable not set")
	}
	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN environment variable not set")
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Vault client: %w", err)
	}
	client.SetToken(token)
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}
	return client, nil
}

// secretField picks key out of a KV v1 or v2 payload.
func secretField(data map[string]any, path, key string) (string, error) {
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}
	val, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in Vault secret at %s", key, path)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s#%s is not a string", path, key)
	}
	return str, nil
}
