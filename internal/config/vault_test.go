package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeVault serves KV secrets keyed by request path and records namespaces.
func fakeVault(t *testing.T, secrets map[string]map[string]any) (*httptest.Server, *[]string) {
	t.Helper()
	var namespaces []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		namespaces = append(namespaces, r.Header.Get("X-Vault-Namespace"))
		data, ok := secrets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(server.Close)
	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "test-token")
	return server, &namespaces
}

func TestLoadResolvesVaultSecrets(t *testing.T) {
	fakeVault(t, map[string]map[string]any{
		// KV v2 nests the payload under data.
		"/v1/secret/data/callrunner/warehouse": {
			"data": map[string]any{"dsn": "postgres://etl:pw@warehouse:5439/dev"},
		},
		// KV v1 does not.
		"/v1/kv/callrunner/history": {
			"mongo_uri":      "mongodb://runs:pw@mongo:27017",
			"redis_password": "r3dis",
		},
	})

	path := writeConfig(t, `version: 1
warehouse:
  backend: postgres
  dsn: "${VAULT:secret/data/callrunner/warehouse#dsn}"
history:
  backend: mongodb
  mongo_uri: "${VAULT:kv/callrunner/history#mongo_uri}"
  redis_password: "${VAULT:kv/callrunner/history#redis_password}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Warehouse.DSN != "postgres://etl:pw@warehouse:5439/dev" {
		t.Errorf("warehouse dsn = %q", cfg.Warehouse.DSN)
	}
	if cfg.History.MongoURI != "mongodb://runs:pw@mongo:27017" {
		t.Errorf("mongo uri = %q", cfg.History.MongoURI)
	}
	if cfg.History.RedisPassword != "r3dis" {
		t.Errorf("redis password = %q", cfg.History.RedisPassword)
	}
}

func TestLoadVaultMissingKeyNamesField(t *testing.T) {
	fakeVault(t, map[string]map[string]any{
		"/v1/secret/data/callrunner/warehouse": {"data": map[string]any{"user": "etl"}},
	})

	path := writeConfig(t, `version: 1
warehouse:
  backend: postgres
  dsn: "${VAULT:secret/data/callrunner/warehouse#dsn}"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for a missing key")
	}
	if got := err.Error(); !strings.Contains(got, "warehouse dsn") {
		t.Errorf("error should name the config field, got %q", got)
	}
}

func TestResolveVault_Namespace(t *testing.T) {
	_, namespaces := fakeVault(t, map[string]map[string]any{
		"/v1/secret/data/callrunner": {"data": map[string]any{"dsn": "x"}},
	})
	t.Setenv("VAULT_NAMESPACE", "analytics")

	if _, err := resolveVault("secret/data/callrunner#dsn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*namespaces) != 1 || (*namespaces)[0] != "analytics" {
		t.Errorf("namespaces sent = %v", *namespaces)
	}
}

func TestResolveVault_Errors(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		token string
		ref   string
	}{
		{"no separator", "http://127.0.0.1:1", "t", "secret/data/callrunner"},
		{"empty key", "http://127.0.0.1:1", "t", "secret/data/callrunner#"},
		{"no address", "", "t", "secret/data/callrunner#dsn"},
		{"no token", "http://127.0.0.1:1", "", "secret/data/callrunner#dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VAULT_ADDR", tt.addr)
			t.Setenv("VAULT_TOKEN", tt.token)
			if _, err := resolveVault(tt.ref); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSecretField(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		want    string
		wantErr bool
	}{
		{"kv v2", map[string]any{"data": map[string]any{"dsn": "a"}}, "a", false},
		{"kv v1", map[string]any{"dsn": "b"}, "b", false},
		{"missing", map[string]any{"other": "c"}, "", true},
		{"not a string", map[string]any{"dsn": 5439}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := secretField(tt.data, "secret/callrunner", "dsn")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
