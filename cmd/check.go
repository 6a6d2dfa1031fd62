package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	awspkg "github.com/callrunner/callrunner/internal/aws"
	"github.com/callrunner/callrunner/internal/runner"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify AWS credentials and the permissions a run needs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		awsCfg, err := awspkg.LoadConfig(ctx, sessionOptions(cfg))
		if err != nil {
			return err
		}

		result, err := awspkg.RunPreflight(ctx, awspkg.NewRealClient(awsCfg), awspkg.PreflightTarget{
			Bucket:            cfg.Manifest.Bucket,
			Prefix:            cfg.Manifest.Prefix,
			ClusterIdentifier: firstNonEmpty(cfg.Warehouse.ClusterIdentifier, runner.DefaultClusterIdentifier),
			WorkgroupName:     cfg.Warehouse.WorkgroupName,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Identity: %s (account %s)\n\n", result.Identity.ARN, result.Identity.Account)
		for _, c := range result.Checks {
			status := "OK  "
			if !c.Allowed {
				status = "DENY"
			}
			fmt.Printf("  [%s] %-34s %s\n", status, c.Action, c.Resource)
			if c.Error != "" {
				fmt.Printf("         %s\n", c.Error)
			}
		}
		fmt.Printf("\n%s\n", result.Message)

		if !result.Ready() {
			return fmt.Errorf("missing permissions")
		}
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
