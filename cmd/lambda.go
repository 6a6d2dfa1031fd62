package cmd

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/callrunner/callrunner/internal/runner"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Start the AWS Lambda handler",
	Long: `Start the AWS Lambda runtime loop. Each event is decoded as an invocation
request and answered with a {statusCode, body} response.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startLambda()
	},
}

// startLambda only returns on setup failure; lambda.Start never returns.
func startLambda() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Logging.Format = "json"
	}
	// The Lambda filesystem is read-only outside /tmp.
	cfg.Logging.Directory = ""

	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	a, err := newApp(context.Background(), cfg, logger, appOptions{})
	if err != nil {
		return err
	}

	logger.Info("lambda handler ready", "manifest", locatorString(a.runner.Locator()))
	lambda.Start(newHandler(a.runner))
	return nil
}

func newHandler(r *runner.Runner) func(context.Context, runner.Request) (runner.Response, error) {
	return func(ctx context.Context, req runner.Request) (runner.Response, error) {
		return r.Invoke(ctx, req), nil
	}
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}
