package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/callrunner/callrunner/internal/api"
	"github.com/callrunner/callrunner/internal/metrics"
	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/ws"
	"github.com/callrunner/callrunner/web"
)

var servePort int
var serveDevMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long: `Serve POST /api/invoke plus a dry-run manifest view, run history,
Prometheus metrics and live progress over WebSocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := ws.NewHub(logger)
		progress := ws.NewProgress(hub)
		collector := metrics.NewCollector()
		go hub.Run(ctx)

		a, err := newApp(ctx, cfg, logger, appOptions{
			observers: []runner.Observer{collector, progress},
		})
		if err != nil {
			return err
		}
		defer a.Close()

		srv := api.New(a.runner, logger, cfg.Server.Port,
			api.WithStaticFS(web.StaticFS()),
			api.WithHub(hub),
			api.WithHistory(a.history),
			api.WithMetrics(collector.Handler()),
			api.WithDevMode(serveDevMode),
		)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Fprintf(os.Stderr, "callrunner trigger: http://localhost:%d\n", cfg.Server.Port)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8230, "port for the trigger server (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS for development mode")
	rootCmd.AddCommand(serveCmd)
}
