package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show the manifest that would run, without running it",
	Long: `Find the manifest, read it, and print the statement every line would
become. Nothing is submitted to the warehouse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger, appOptions{noWarehouse: true})
		if err != nil {
			return err
		}
		defer a.Close()

		loc := a.runner.Locator()
		fmt.Printf("Searching %s...\n", locatorString(loc))

		m, directives, errs, err := a.runner.Preview(ctx)
		if err != nil {
			fmt.Printf("\n%v\n", err)
			fmt.Printf("Files under %s:\n", cfg.Manifest.ListingPrefix)
			for _, f := range a.runner.Nearby(ctx, cfg.Manifest.FailureListingMaxKeys) {
				fmt.Printf("  %s\n", f)
			}
			return fmt.Errorf("discovering manifest: %w", err)
		}

		fmt.Printf("Manifest: s3://%s/%s\n", m.Bucket, m.Key)
		fmt.Printf("Nearby:   %v\n\n", a.runner.Nearby(ctx, 0))

		invalid := 0
		fmt.Printf("%d procedure(s):\n", len(directives))
		for i, d := range directives {
			if errs[i] != nil {
				invalid++
				fmt.Printf("  %3d. [INVALID] %s\n       %v\n", i+1, d.Raw, errs[i])
				continue
			}
			fmt.Printf("  %3d. %-40s %s\n", i+1, d.ProcedureName, d.Statement)
		}

		if invalid > 0 {
			return fmt.Errorf("%d line(s) would fail in %s mode", invalid, cfg.Directive.Mode)
		}
		if len(directives) == 0 {
			fmt.Println("  (none; a run would succeed with 0 procedures)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
