package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/api"
	"github.com/ethpandaops/speedcenter/pkg/commitlog"
	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/export"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start the speedcenter HTTP server exposing the analytics views and result ingestion.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	provider, err := commitlog.NewProvider(log, &cfg.CommitLogs)
	if err != nil {
		return fmt.Errorf("creating commit log provider: %w", err)
	}

	scheduler, err := newExportScheduler(cfg, st)
	if err != nil {
		return err
	}

	srv := api.NewServer(log, cfg, st, provider)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Start the export scheduler after the API is listening.
	if scheduler != nil {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down API server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}

// newExportScheduler returns the scheduler for periodic exports, or nil
// when export.interval is not set.
func newExportScheduler(cfg *config.Config, st store.Store) (*export.Scheduler, error) {
	if cfg.Export.Interval == "" {
		return nil, nil
	}

	interval, err := time.ParseDuration(cfg.Export.Interval)
	if err != nil {
		return nil, fmt.Errorf("parsing export.interval: %w", err)
	}

	publisher, err := export.NewPublisher(log, &cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	exporter := export.New(
		log, st, analytics.New(log, st, cfg.Analytics), publisher, &cfg.Export,
	)

	return export.NewScheduler(log, exporter, interval)
}
