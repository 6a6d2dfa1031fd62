package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "callrunner",
	Short: "callrunner - run the stored procedures listed in an S3 manifest",
	Long: `callrunner finds a manifest of procedure calls in S3, runs each one on
Amazon Redshift through the Data API, and reports a statusCode/body result.

Inside AWS Lambda (AWS_LAMBDA_FUNCTION_NAME set) running without a
subcommand starts the Lambda handler.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal to break the
	// rootCmd -> startLambda -> loadConfig -> rootCmd initialization cycle.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			return startLambda()
		}
		return cmd.Help()
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.callrunner/callrunner.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
