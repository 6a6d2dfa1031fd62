package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/callrunner/callrunner/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View, validate, and create the callrunner configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Effective configuration:")
		fmt.Println()
		fmt.Printf("  AWS:\n")
		fmt.Printf("    Region:         %s\n", cfg.AWS.Region)
		fmt.Printf("    Profile:        %s\n", cfg.AWS.Profile)
		fmt.Printf("    Timeouts:       connect %s, read %s\n", cfg.AWS.ConnectTimeout, cfg.AWS.ReadTimeout)
		fmt.Printf("    Max Attempts:   %d\n", cfg.AWS.MaxAttempts)
		fmt.Println()
		fmt.Printf("  Manifest:\n")
		fmt.Printf("    Backend:        %s\n", cfg.Manifest.Backend)
		fmt.Printf("    Location:       s3://%s/%s*%s\n", cfg.Manifest.Bucket, cfg.Manifest.Prefix, cfg.Manifest.Suffix)
		fmt.Printf("    Selection:      %s\n", cfg.Manifest.Selection)
		if cfg.Manifest.Backend == "minio" {
			fmt.Printf("    MinIO:          %s (secret %s)\n", cfg.MinIO.Endpoint, maskSecret(cfg.MinIO.SecretKey))
		}
		fmt.Println()
		fmt.Printf("  Warehouse:\n")
		fmt.Printf("    Backend:        %s\n", cfg.Warehouse.Backend)
		fmt.Printf("    Cluster:        %s\n", cfg.Warehouse.ClusterIdentifier)
		fmt.Printf("    Workgroup:      %s\n", cfg.Warehouse.WorkgroupName)
		fmt.Printf("    Database:       %s\n", cfg.Warehouse.Database)
		fmt.Printf("    DB User:        %s\n", cfg.Warehouse.DbUser)
		if cfg.Warehouse.DSN != "" {
			fmt.Printf("    DSN:            %s\n", maskSecret(cfg.Warehouse.DSN))
		}
		fmt.Printf("    Poll:           every %s, up to %s\n", cfg.Warehouse.PollInterval, cfg.Warehouse.MaxWait)
		fmt.Printf("    Cancel on TO:   %v\n", cfg.Warehouse.CancelOnTimeout)
		fmt.Println()
		fmt.Printf("  Directive Mode:   %s\n", cfg.Directive.Mode)
		fmt.Printf("  History:          %s\n", cfg.History.Backend)
		fmt.Printf("  Log Level:        %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file and environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Println("Config is valid.")
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file holding the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := config.Default().Save(path); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
