package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/callrunner/callrunner/internal/config"
	"github.com/callrunner/callrunner/internal/lock"
	"github.com/callrunner/callrunner/internal/report"
	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/tui"
)

var (
	runCluster  string
	runDatabase string
	runDbUser   string
	runEvent    string
	runReport   string
	runTUI      bool
	runNoLock   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the manifest once and print the response body",
	Long: `Discover the manifest, run every procedure call in order, and print the
response body. Exits non-zero when the status code is not 200.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		req, err := readEvent(runEvent)
		if err != nil {
			return err
		}
		if runCluster != "" {
			req.ClusterIdentifier = runCluster
		}
		if runDatabase != "" {
			req.Database = runDatabase
		}
		if runDbUser != "" {
			req.DbUser = runDbUser
		}

		if !runNoLock {
			if err := lock.Acquire(""); err != nil {
				return err
			}
			defer lock.Release("")
		}
		stop := exitOnInterrupt(!runNoLock)
		defer stop()

		ctx := context.Background()

		var result *runner.Result
		if runTUI {
			result, err = runInteractive(ctx, cfg, req)
		} else {
			result, err = runPlain(ctx, cfg, req)
		}
		if err != nil {
			return err
		}

		resp := result.Response()
		fmt.Println(indentJSON(resp.Body))

		if runReport != "" {
			if err := report.Write(report.Generate(result), runReport); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Report written to %s\n", runReport)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("run finished with status %d", resp.StatusCode)
		}
		return nil
	},
}

func runPlain(ctx context.Context, cfg *config.Config, req runner.Request) (*runner.Result, error) {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	result, _ := a.runner.Run(ctx, req)
	return result, nil
}

// runInteractive shows live progress. Logs go to the log file only.
// Quitting the display before the run ends abandons the run.
func runInteractive(ctx context.Context, cfg *config.Config, req runner.Request) (*runner.Result, error) {
	logger, err := newLogger(cfg, nil)
	if err != nil {
		return nil, err
	}

	rcfg, err := runnerConfig(cfg)
	if err != nil {
		return nil, err
	}
	p := tea.NewProgram(tui.NewModel(locatorString(rcfg.Locator)))

	a, err := newApp(ctx, cfg, logger, appOptions{observers: []runner.Observer{tui.NewObserver(p)}})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	done := make(chan *runner.Result, 1)
	go func() {
		result, _ := a.runner.Run(ctx, req)
		done <- result
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running progress display: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Aborted() {
		return nil, errAbandoned
	}
	return <-done, nil
}

var errAbandoned = errors.New("run abandoned; statements already submitted keep running in the warehouse")

// exitOnInterrupt ends the process on SIGINT or SIGTERM. Statements already
// submitted keep running in the warehouse. The returned func stops listening.
func exitOnInterrupt(releaseLock bool) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, errAbandoned)
			if releaseLock {
				lock.Release("")
			}
			os.Exit(130)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func readEvent(path string) (runner.Request, error) {
	var req runner.Request
	if path == "" {
		return req, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("reading event: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing event: %w", err)
	}
	return req, nil
}

func indentJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}

func init() {
	runCmd.Flags().StringVar(&runCluster, "cluster", "", "cluster identifier (overrides config and CLUSTER_ID)")
	runCmd.Flags().StringVar(&runDatabase, "database", "", "database name (overrides config and DATABASE)")
	runCmd.Flags().StringVar(&runDbUser, "db-user", "", "database user (overrides config and DB_USER)")
	runCmd.Flags().StringVar(&runEvent, "event", "", "invocation event JSON file (- for stdin)")
	runCmd.Flags().StringVar(&runReport, "report", "", "write a run report (.json for JSON, text otherwise)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show live progress in the terminal")
	runCmd.Flags().BoolVar(&runNoLock, "no-lock", false, "skip the single-run lock")
	rootCmd.AddCommand(runCmd)
}
