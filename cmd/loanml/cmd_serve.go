package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loanml/internal/journal"
	"loanml/internal/server"
	"loanml/internal/telemetry"
	"loanml/pkg/artifact"
)

var serveAddr string

// serveCmd starts the HTTP surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the loan application form and JSON API",
	Long: `Loads the model and feature columns once and serves predictions until
interrupted. Startup fails if either artifact is missing or corrupt.

Routes:
  GET  /               landing page
  GET  /apply          application form
  POST /apply          form submission, renders the decision
  POST /api/v1/predict JSON application, returns the prediction
  GET  /api/v1/schema  trained feature columns
  GET  /api/v1/options enumerated choices per field
  GET  /health         liveness`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := artifact.Load(cfg.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("cannot start without artifacts in %s: %w", cfg.Artifacts.Dir, err)
	}
	logger.Info("artifacts loaded",
		zap.String("dir", cfg.Artifacts.Dir),
		zap.Int("columns", p.Schema().Len()))

	metrics, shutdown, err := telemetry.Setup(ctx, telemetryConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	opts := []server.Option{
		server.WithLogger(logger.Named("server")),
		server.WithMetrics(metrics),
	}
	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("journal enabled", zap.String("path", store.Path()))
		opts = append(opts, server.WithJournal(store))
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(p, opts...)
	return srv.ListenAndServe(ctx, addr, server.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	})
}
