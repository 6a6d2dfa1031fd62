package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.callrunner/callrunner.yaml"
)

// Config is the top-level configuration. Values come from the YAML file
// first, then from environment variables, then from defaults.
type Config struct {
	Version   int             `yaml:"version"`
	AWS       AWSConfig       `yaml:"aws,omitempty"`
	Manifest  ManifestConfig  `yaml:"manifest,omitempty"`
	MinIO     MinIOConfig     `yaml:"minio,omitempty"`
	Warehouse WarehouseConfig `yaml:"warehouse,omitempty"`
	Directive DirectiveConfig `yaml:"directive,omitempty"`
	History   HistoryConfig   `yaml:"history,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`
	Logging   LogConfig       `yaml:"logging,omitempty"`
}

// AWSConfig defines SDK client settings.
type AWSConfig struct {
	Region         string        `yaml:"region,omitempty" env:"AWS_DEFAULT_REGION"`
	Profile        string        `yaml:"profile,omitempty" env:"AWS_PROFILE"`
	EndpointURL    string        `yaml:"endpoint_url,omitempty" env:"AWS_ENDPOINT_URL"`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty" env:"AWS_CONNECT_TIMEOUT"`
	ReadTimeout    time.Duration `yaml:"read_timeout,omitempty" env:"AWS_READ_TIMEOUT"`
	MaxAttempts    int           `yaml:"max_attempts,omitempty" env:"AWS_MAX_ATTEMPTS"`
}

// ManifestConfig defines where the manifest is found.
type ManifestConfig struct {
	Backend               string `yaml:"backend,omitempty" env:"MANIFEST_BACKEND"` // s3 or minio
	Bucket                string `yaml:"bucket,omitempty" env:"MANIFEST_BUCKET"`
	Prefix                string `yaml:"prefix,omitempty" env:"MANIFEST_PREFIX"`
	Suffix                string `yaml:"suffix,omitempty" env:"MANIFEST_SUFFIX"`
	Selection             string `yaml:"selection,omitempty" env:"MANIFEST_SELECTION"` // first, lexical or latest
	ListingPrefix         string `yaml:"listing_prefix,omitempty" env:"MANIFEST_LISTING_PREFIX"`
	ListingMaxKeys        int    `yaml:"listing_max_keys,omitempty"`
	FailureListingMaxKeys int    `yaml:"failure_listing_max_keys,omitempty"`
}

// MinIOConfig defines an S3-compatible endpoint used when manifest.backend is minio.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key,omitempty" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key,omitempty" env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl,omitempty" env:"MINIO_USE_SSL"`
}

// WarehouseConfig defines the statement target and polling behavior.
type WarehouseConfig struct {
	Backend           string        `yaml:"backend,omitempty" env:"WAREHOUSE_BACKEND"` // redshift-data or postgres
	ClusterIdentifier string        `yaml:"cluster_identifier,omitempty" env:"CLUSTER_ID"`
	Database          string        `yaml:"database,omitempty" env:"DATABASE"`
	DbUser            string        `yaml:"db_user,omitempty" env:"DB_USER"`
	WorkgroupName     string        `yaml:"workgroup_name,omitempty" env:"WORKGROUP_NAME"`
	SecretARN         string        `yaml:"secret_arn,omitempty" env:"SECRET_ARN"`
	DSN               string        `yaml:"dsn,omitempty" env:"WAREHOUSE_DSN"`
	PollInterval      time.Duration `yaml:"poll_interval,omitempty" env:"POLL_INTERVAL"`
	MaxWait           time.Duration `yaml:"max_wait,omitempty" env:"MAX_WAIT"`
	CancelOnTimeout   bool          `yaml:"cancel_on_timeout,omitempty" env:"CANCEL_ON_TIMEOUT"`
}

// DirectiveConfig selects how manifest lines become statements.
type DirectiveConfig struct {
	Mode string `yaml:"mode,omitempty" env:"DIRECTIVE_MODE"` // textual or strict
}

// HistoryConfig defines where finished runs are recorded.
type HistoryConfig struct {
	Backend       string        `yaml:"backend,omitempty" env:"HISTORY_BACKEND"` // none, memory, redis or mongodb
	RedisAddr     string        `yaml:"redis_addr,omitempty" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password,omitempty" env:"REDIS_PASS"`
	RedisDB       int           `yaml:"redis_db,omitempty" env:"REDIS_DB"`
	MongoURI      string        `yaml:"mongo_uri,omitempty" env:"MONGO_URI"`
	MongoDatabase string        `yaml:"mongo_database,omitempty" env:"MONGO_DATABASE"`
	TTL           time.Duration `yaml:"ttl,omitempty" env:"HISTORY_TTL"`
}

// ServerConfig defines the HTTP trigger.
type ServerConfig struct {
	Port int `yaml:"port,omitempty" env:"CALLRUNNER_PORT"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty" env:"LOG_LEVEL"`   // debug, info, warn, error
	Directory string `yaml:"directory,omitempty" env:"LOG_DIR"` // empty logs to stdout only
	Format    string `yaml:"format,omitempty" env:"LOG_FORMAT"` // text or json
}

// Load reads the config file at path, applies environment overrides and
// defaults, and validates the result. An empty path means DefaultPath,
// which may be absent.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = ExpandHome(DefaultPath)
	}

	cfg := &Config{Version: CurrentVersion}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		if cfg.Version != CurrentVersion {
			return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a config holding only defaults.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	c.Manifest.Backend = strings.ToLower(c.Manifest.Backend)
	c.Manifest.Selection = strings.ToLower(c.Manifest.Selection)
	c.Warehouse.Backend = strings.ToLower(c.Warehouse.Backend)
	c.Directive.Mode = strings.ToLower(c.Directive.Mode)
	c.History.Backend = strings.ToLower(c.History.Backend)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.ConnectTimeout == 0 {
		c.AWS.ConnectTimeout = 10 * time.Second
	}
	if c.AWS.ReadTimeout == 0 {
		c.AWS.ReadTimeout = 10 * time.Second
	}
	if c.AWS.MaxAttempts == 0 {
		c.AWS.MaxAttempts = 2
	}

	if c.Manifest.Backend == "" {
		c.Manifest.Backend = "s3"
	}
	if c.Manifest.Bucket == "" {
		c.Manifest.Bucket = "daab-lab-jfr-datalake"
	}
	if c.Manifest.Prefix == "" {
		c.Manifest.Prefix = "Redshift/Rel"
	}
	if c.Manifest.Suffix == "" {
		c.Manifest.Suffix = ".txt"
	}
	if c.Manifest.Selection == "" {
		c.Manifest.Selection = "first"
	}
	if c.Manifest.ListingPrefix == "" {
		c.Manifest.ListingPrefix = "Redshift/"
	}
	if c.Manifest.ListingMaxKeys == 0 {
		c.Manifest.ListingMaxKeys = 10
	}
	if c.Manifest.FailureListingMaxKeys == 0 {
		c.Manifest.FailureListingMaxKeys = 20
	}

	if c.Warehouse.Backend == "" {
		c.Warehouse.Backend = "redshift-data"
	}
	if c.Warehouse.PollInterval == 0 {
		c.Warehouse.PollInterval = 2 * time.Second
	}
	if c.Warehouse.MaxWait == 0 {
		c.Warehouse.MaxWait = 300 * time.Second
	}

	if c.Directive.Mode == "" {
		c.Directive.Mode = "textual"
	}

	if c.History.Backend == "" {
		c.History.Backend = "none"
	}
	if c.History.RedisAddr == "" {
		c.History.RedisAddr = "localhost:6379"
	}
	if c.History.MongoDatabase == "" {
		c.History.MongoDatabase = "callrunner"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8230
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks enumerations and numeric ranges.
func (c *Config) Validate() error {
	if err := oneOf("manifest.backend", c.Manifest.Backend, "s3", "minio"); err != nil {
		return err
	}
	if err := oneOf("manifest.selection", strings.ToLower(c.Manifest.Selection), "first", "lexical", "latest"); err != nil {
		return err
	}
	if err := oneOf("warehouse.backend", c.Warehouse.Backend, "redshift-data", "postgres"); err != nil {
		return err
	}
	if err := oneOf("directive.mode", strings.ToLower(c.Directive.Mode), "textual", "strict"); err != nil {
		return err
	}
	if err := oneOf("history.backend", c.History.Backend, "none", "memory", "redis", "mongodb"); err != nil {
		return err
	}
	if err := oneOf("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("logging.format", c.Logging.Format, "text", "json"); err != nil {
		return err
	}

	if c.Warehouse.PollInterval <= 0 {
		return fmt.Errorf("warehouse.poll_interval must be positive, got %s", c.Warehouse.PollInterval)
	}
	if c.Warehouse.MaxWait <= 0 {
		return fmt.Errorf("warehouse.max_wait must be positive, got %s", c.Warehouse.MaxWait)
	}
	if c.AWS.MaxAttempts < 1 {
		return fmt.Errorf("aws.max_attempts must be at least 1, got %d", c.AWS.MaxAttempts)
	}
	if c.Manifest.ListingMaxKeys < 1 || c.Manifest.FailureListingMaxKeys < 1 {
		return fmt.Errorf("manifest listing sizes must be at least 1")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Manifest.Backend == "minio" && c.MinIO.Endpoint == "" {
		return fmt.Errorf("minio.endpoint is required when manifest.backend is minio")
	}
	if c.Warehouse.Backend == "postgres" && c.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse.dsn is required when warehouse.backend is postgres")
	}
	if c.History.Backend == "mongodb" && c.History.MongoURI == "" {
		return fmt.Errorf("history.mongo_uri is required when history.backend is mongodb")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (expected one of %s)", field, value, strings.Join(allowed, ", "))
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"minio secret key", &c.MinIO.SecretKey},
		{"warehouse dsn", &c.Warehouse.DSN},
		{"redis password", &c.History.RedisPassword},
		{"mongo uri", &c.History.MongoURI},
	}
	for _, f := range fields {
		v, err := ResolveValue(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = v
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
