package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/export"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Publish JSON snapshots of the analytics views",
	Long: `Computes the overview tables and timelines of every environment and
publishes them to the configured S3 bucket or local directory.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := export.NewPublisher(log, &cfg.Export)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}

	if err := publisher.Preflight(ctx); err != nil {
		return fmt.Errorf("export preflight: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	engine := analytics.New(log, st, cfg.Analytics)

	if _, err := export.New(log, st, engine, publisher, &cfg.Export).Run(ctx); err != nil {
		return fmt.Errorf("exporting: %w", err)
	}

	return nil
}
