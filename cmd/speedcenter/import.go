package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethpandaops/speedcenter/pkg/commitlog"
	"github.com/ethpandaops/speedcenter/pkg/ingest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import benchmark results from a JSON file",
	Long: `Reads a JSON array of result submissions, using the same keys as
POST /api/v1/result/add, and stores them in order.`,
	RunE: runImport,
}

var importFile string

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importFile, "file", "",
		"Path to the JSON file of submissions")

	if err := importCmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
}

func runImport(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", importFile, err)
	}

	var raws []map[string]any
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("parsing %s: %w", importFile, err)
	}

	subs := make([]*ingest.Submission, 0, len(raws))

	for i, raw := range raws {
		sub, err := ingest.Decode(raw)
		if err != nil {
			return fmt.Errorf("submission %d: %w", i, err)
		}

		subs = append(subs, sub)
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	provider, err := commitlog.NewProvider(log, &cfg.CommitLogs)
	if err != nil {
		return fmt.Errorf("creating commit log provider: %w", err)
	}

	saved, err := ingest.New(log, st, provider).AddAll(ctx, subs)

	log.WithFields(logrus.Fields{
		"file":  importFile,
		"saved": saved,
		"total": len(subs),
	}).Info("Import finished")

	return err
}
