package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/report"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a markdown overview report",
	Long: `Computes the change/trend table of an executable at a revision and
writes it as markdown, for example to post as a pull request comment.`,
	RunE: runReport,
}

var (
	reportExecutable uint
	reportHost       string
	reportRevision   string
	reportTrend      int
	reportBaseline   string
	reportOutput     string
	reportMaxChars   int
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().UintVar(&reportExecutable, "exe", 0,
		"Executable id (default: the configured default executable)")
	reportCmd.Flags().StringVar(&reportHost, "host", "",
		"Environment name (default: the default environment)")
	reportCmd.Flags().StringVar(&reportRevision, "revision", "",
		"Commit id (default: the latest revision)")
	reportCmd.Flags().IntVar(&reportTrend, "trend", analytics.DefaultTrend,
		"Trend window in revisions")
	reportCmd.Flags().StringVar(&reportBaseline, "baseline", "",
		"Baseline as {executable id}+{revision id}")
	reportCmd.Flags().StringVar(&reportOutput, "output", "",
		"Output file path (default: stdout)")
	reportCmd.Flags().IntVar(&reportMaxChars, "max-chars", 65000,
		"Truncate the benchmark list beyond this many characters (0 disables)")
}

func runReport(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	baseline, err := analytics.ParseBaselineRef(reportBaseline)
	if err != nil {
		return err
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	engine := analytics.New(log, st, cfg.Analytics)

	var exe *store.Executable
	if reportExecutable != 0 {
		exe, err = st.GetExecutable(ctx, reportExecutable)
	} else {
		exe, err = engine.DefaultExecutable(ctx)
	}

	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	var env *store.Environment
	if reportHost != "" {
		env, err = st.GetEnvironmentByName(ctx, reportHost)
	} else {
		env, err = engine.DefaultEnvironment(ctx)
	}

	if err != nil {
		return fmt.Errorf("resolving environment: %w", err)
	}

	var rev *store.Revision
	if reportRevision != "" {
		rev, err = st.GetRevisionByCommit(ctx, exe.ProjectID, reportRevision)
	} else {
		rev, err = st.LatestRevision(ctx, exe.ProjectID)
	}

	if err != nil {
		return fmt.Errorf("resolving revision: %w", err)
	}

	table, err := engine.Table(ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    rev,
		TrendWindow: reportTrend,
		Baseline:    baseline,
	})
	if err != nil {
		return fmt.Errorf("computing table: %w", err)
	}

	md := report.GenerateMarkdown(table, report.DefaultThresholds, reportMaxChars)

	if reportOutput == "" {
		_, err = fmt.Fprint(os.Stdout, md)

		return err
	}

	if err := os.WriteFile(reportOutput, []byte(md), 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", reportOutput).Info("Report generated")

	return nil
}
