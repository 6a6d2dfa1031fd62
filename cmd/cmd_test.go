package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/callrunner/callrunner/internal/config"
	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/execution"
	"github.com/callrunner/callrunner/internal/manifest"
	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/storage"
	"github.com/callrunner/callrunner/internal/warehouse"
)

func TestRunnerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Manifest.Selection = "latest"
	cfg.Directive.Mode = "strict"
	cfg.Warehouse.WorkgroupName = "wg"
	cfg.Warehouse.Database = "analytics"

	rcfg, err := runnerConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if rcfg.Locator.Policy != manifest.SelectLatest {
		t.Errorf("Policy = %q", rcfg.Locator.Policy)
	}
	if rcfg.Locator.Bucket != "daab-lab-jfr-datalake" || rcfg.Locator.Prefix != "Redshift/Rel" {
		t.Errorf("Locator = %+v", rcfg.Locator)
	}
	if rcfg.Mode != directive.ModeStrict {
		t.Errorf("Mode = %q", rcfg.Mode)
	}
	if rcfg.Target.WorkgroupName != "wg" || rcfg.Target.Database != "analytics" {
		t.Errorf("Target = %+v", rcfg.Target)
	}
	if rcfg.ListingMaxKeys != 10 || rcfg.FailureListingMaxKeys != 20 {
		t.Errorf("listing sizes = %d/%d", rcfg.ListingMaxKeys, rcfg.FailureListingMaxKeys)
	}
}

func TestRunnerConfig_InvalidPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Manifest.Selection = "newest"
	if _, err := runnerConfig(cfg); err == nil {
		t.Error("expected error for unknown selection policy")
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := config.Default()
	opts := sessionOptions(cfg)
	if opts.ConnectTimeout != 10*time.Second || opts.ReadTimeout != 10*time.Second || opts.MaxAttempts != 2 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Region != "us-east-1" {
		t.Errorf("Region = %q", opts.Region)
	}
}

func TestNewHandler(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("Redshift/Rel_1.txt", []byte("etl.load"))
	wh := warehouse.NewMockWarehouse()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := execution.New(wh, execution.WithPollInterval(time.Millisecond), execution.WithLogger(logger))
	r := runner.New(store, exec, runner.Config{}, runner.WithLogger(logger))

	var req runner.Request
	if err := json.Unmarshal([]byte(`{"stored_procedure_name":"ignored","database":"analytics","extra":true}`), &req); err != nil {
		t.Fatal(err)
	}

	resp, err := newHandler(r)(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d\n%s", resp.StatusCode, resp.Body)
	}
	if got := wh.Executed[0]; got.SQL != "CALL etl.load();" || got.Database != "analytics" {
		t.Errorf("executed %+v", got)
	}
}

func TestReadEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(`{"cluster_identifier":"c9","parameters":[1,"a"]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := readEvent(path)
	if err != nil {
		t.Fatal(err)
	}
	if req.ClusterIdentifier != "c9" || len(req.Parameters) != 2 {
		t.Errorf("req = %+v", req)
	}

	if req, err := readEvent(""); err != nil || req.ClusterIdentifier != "" {
		t.Errorf("empty path = %+v, %v", req, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := readEvent(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestIndentJSON(t *testing.T) {
	if got := indentJSON(`{"a":1}`); got != "{\n  \"a\": 1\n}" {
		t.Errorf("indentJSON = %q", got)
	}
	if got := indentJSON("not json"); got != "not json" {
		t.Errorf("non-JSON should pass through, got %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"abc":        "***",
		"postgres":   "po****es",
		"secret-key": "se******ey",
	}
	for in, want := range tests {
		if got := maskSecret(in); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHistoryConfig(t *testing.T) {
	cfg := config.Default()
	cfg.History.Backend = "redis"
	cfg.History.RedisDB = 3
	cfg.History.TTL = time.Hour

	hc := historyConfig(cfg)
	if hc.Backend != "redis" || hc.RedisDB != 3 || hc.TTL != time.Hour || hc.RedisAddr != "localhost:6379" {
		t.Errorf("history config = %+v", hc)
	}
}
