package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"

	awspkg "github.com/callrunner/callrunner/internal/aws"
	"github.com/callrunner/callrunner/internal/config"
	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/execution"
	"github.com/callrunner/callrunner/internal/history"
	"github.com/callrunner/callrunner/internal/logging"
	"github.com/callrunner/callrunner/internal/manifest"
	"github.com/callrunner/callrunner/internal/minio"
	"github.com/callrunner/callrunner/internal/postgres"
	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/storage"
	"github.com/callrunner/callrunner/internal/warehouse"
)

// app holds everything a command needs to run manifests.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	runner  *runner.Runner
	history history.Store
	closers []func()
}

type appOptions struct {
	observers []runner.Observer
	// noWarehouse skips warehouse setup for commands that never execute.
	noWarehouse bool
}

// loadConfig loads the config file and applies the --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, console io.Writer) (*slog.Logger, error) {
	return logging.SetupTo(console, cfg.Logging.Level, cfg.Logging.Directory, cfg.Logging.Format)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	rcfg, err := runnerConfig(cfg)
	if err != nil {
		return nil, err
	}

	var awsCfg sdkaws.Config
	if cfg.Manifest.Backend == "s3" || (!opts.noWarehouse && cfg.Warehouse.Backend == "redshift-data") {
		awsCfg, err = awspkg.LoadConfig(ctx, sessionOptions(cfg))
		if err != nil {
			return nil, err
		}
	}

	store, err := buildStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	var wh warehouse.Warehouse
	if !opts.noWarehouse {
		wh, err = a.buildWarehouse(ctx, cfg, awsCfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	exec := execution.New(wh,
		execution.WithPollInterval(cfg.Warehouse.PollInterval),
		execution.WithMaxWait(cfg.Warehouse.MaxWait),
		execution.WithCancelOnTimeout(cfg.Warehouse.CancelOnTimeout),
		execution.WithLogger(logger),
	)

	runnerOpts := []runner.Option{runner.WithLogger(logger)}
	if len(opts.observers) > 0 {
		runnerOpts = append(runnerOpts, runner.WithObserver(runner.Observers(opts.observers)))
	}

	if !opts.noWarehouse {
		a.history, err = history.Open(ctx, historyConfig(cfg))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening run history: %w", err)
		}
		if a.history != nil {
			hs := a.history
			a.closers = append(a.closers, func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := hs.Close(closeCtx); err != nil {
					logger.Warn("closing run history", "error", err)
				}
			})
			runnerOpts = append(runnerOpts, runner.WithRecorder(a.history))
		}
	}

	a.runner = runner.New(store, exec, rcfg, runnerOpts...)
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildStore(cfg *config.Config, awsCfg sdkaws.Config) (storage.ObjectStore, error) {
	switch cfg.Manifest.Backend {
	case "minio":
		s, err := minio.New(minio.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.AWS.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MinIO store: %w", err)
		}
		return s, nil
	default:
		return awspkg.NewS3StoreFromConfig(awsCfg), nil
	}
}

func (a *app) buildWarehouse(ctx context.Context, cfg *config.Config, awsCfg sdkaws.Config) (warehouse.Warehouse, error) {
	switch cfg.Warehouse.Backend {
	case "postgres":
		w := postgres.NewWarehouse(cfg.Warehouse.DSN)
		if err := w.Connect(ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w.Close)
		return w, nil
	default:
		return awspkg.NewRedshiftDataFromConfig(awsCfg), nil
	}
}

func sessionOptions(cfg *config.Config) awspkg.SessionOptions {
	return awspkg.SessionOptions{
		Profile:        cfg.AWS.Profile,
		Region:         cfg.AWS.Region,
		EndpointURL:    cfg.AWS.EndpointURL,
		ConnectTimeout: cfg.AWS.ConnectTimeout,
		ReadTimeout:    cfg.AWS.ReadTimeout,
		MaxAttempts:    cfg.AWS.MaxAttempts,
	}
}

func runnerConfig(cfg *config.Config) (runner.Config, error) {
	policy, err := manifest.ParsePolicy(cfg.Manifest.Selection)
	if err != nil {
		return runner.Config{}, err
	}
	mode, err := directive.ParseMode(cfg.Directive.Mode)
	if err != nil {
		return runner.Config{}, err
	}

	return runner.Config{
		Locator: manifest.Locator{
			Bucket: cfg.Manifest.Bucket,
			Prefix: cfg.Manifest.Prefix,
			Suffix: cfg.Manifest.Suffix,
			Policy: policy,
		},
		Target: runner.Target{
			ClusterIdentifier: cfg.Warehouse.ClusterIdentifier,
			WorkgroupName:     cfg.Warehouse.WorkgroupName,
			SecretARN:         cfg.Warehouse.SecretARN,
			Database:          cfg.Warehouse.Database,
			DbUser:            cfg.Warehouse.DbUser,
		},
		Mode:                  mode,
		ListingPrefix:         cfg.Manifest.ListingPrefix,
		ListingMaxKeys:        cfg.Manifest.ListingMaxKeys,
		FailureListingMaxKeys: cfg.Manifest.FailureListingMaxKeys,
	}, nil
}

func historyConfig(cfg *config.Config) history.Config {
	return history.Config{
		Backend:       cfg.History.Backend,
		RedisAddr:     cfg.History.RedisAddr,
		RedisPassword: cfg.History.RedisPassword,
		RedisDB:       cfg.History.RedisDB,
		MongoURI:      cfg.History.MongoURI,
		MongoDatabase: cfg.History.MongoDatabase,
		TTL:           cfg.History.TTL,
	}
}

func locatorString(loc manifest.Locator) string {
	return fmt.Sprintf("s3://%s/%s*%s (%s)", loc.Bucket, loc.Prefix, loc.Suffix, loc.Policy)
}
