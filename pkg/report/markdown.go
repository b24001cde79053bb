// Package report renders overview tables as markdown summaries.
package report

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/store"
)

// Thresholds mark changes and trends worth highlighting, in percent.
type Thresholds struct {
	Change float64
	Trend  float64
}

// DefaultThresholds are the overview view's highlight thresholds.
var DefaultThresholds = Thresholds{
	Change: analytics.DefaultChangeThreshold,
	Trend:  analytics.DefaultTrendThreshold,
}

// GenerateMarkdown renders table as markdown. Benchmark rows are dropped
// once the output would exceed maxChars; zero disables the limit.
func GenerateMarkdown(table *analytics.Table, th Thresholds, maxChars int) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, table)
	writeOverview(&sb, table)
	writeEnvironment(&sb, &table.Environment)
	writeTotals(&sb, table)
	writeResults(&sb, table, th, maxChars)

	return sb.String()
}

func writeTitle(sb *strings.Builder, table *analytics.Table) {
	fmt.Fprintf(sb, "# Benchmark Report: %s\n\n", table.Executable.String())
}

func writeOverview(sb *strings.Builder, table *analytics.Table) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if table.Executable.Project != nil {
		fmt.Fprintf(sb, "| Project | %s |\n", table.Executable.Project.Name)
	}

	fmt.Fprintf(sb, "| Revision | `%s` |\n", table.Revision.CommitID)

	if table.Revision.Tag != "" {
		fmt.Fprintf(sb, "| Tag | %s |\n", table.Revision.Tag)
	}

	if !table.Revision.Date.IsZero() {
		fmt.Fprintf(sb, "| Date | %s |\n",
			table.Revision.Date.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if table.Revision.Author != "" {
		fmt.Fprintf(sb, "| Author | %s |\n", table.Revision.Author)
	}

	fmt.Fprintf(sb, "| Trend Window | %d revisions |\n", table.TrendWindow)
	fmt.Fprintf(sb, "| Benchmarks | %d |\n", len(table.Rows))

	sb.WriteByte('\n')
}

func writeEnvironment(sb *strings.Builder, env *store.Environment) {
	sb.WriteString("## Environment\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	fmt.Fprintf(sb, "| Name | %s |\n", env.Name)

	if env.CPU != "" {
		fmt.Fprintf(sb, "| CPU | %s |\n", env.CPU)
	}

	if env.Memory != "" {
		fmt.Fprintf(sb, "| Memory | %s |\n", env.Memory)
	}

	if env.OS != "" {
		fmt.Fprintf(sb, "| OS | %s |\n", env.OS)
	}

	if env.Kernel != "" {
		fmt.Fprintf(sb, "| Kernel | %s |\n", env.Kernel)
	}

	sb.WriteByte('\n')
}

func writeTotals(sb *strings.Builder, table *analytics.Table) {
	if table.Empty() {
		sb.WriteString("No results for this revision.\n")

		return
	}

	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Change | Trend |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| %s | %s |\n\n",
		percent(table.Totals.Change), percent(table.Totals.Trend))
}

func writeResults(
	sb *strings.Builder,
	table *analytics.Table,
	th Thresholds,
	maxChars int,
) {
	if table.Empty() {
		return
	}

	sb.WriteString("## Results\n\n")

	header := "| Benchmark | Result | Std Dev | Change | Trend |"
	divider := "|---|---|---|---|---|"

	if table.ShowComparison {
		header += " Relative |"
		divider += "---|"
	}

	sb.WriteString(header + "\n" + divider + "\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i := range table.Rows {
		row := formatRow(&table.Rows[i], table.ShowUnits, table.ShowComparison, th)

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			remaining := len(table.Rows) - i
			fmt.Fprintf(sb,
				"\n*%d more benchmark(s) not shown "+
					"(output truncated at %d chars)*\n",
				remaining, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

func formatRow(row *analytics.TableRow, showUnits, showComparison bool, th Thresholds) string {
	result := fmt.Sprintf("%.5f", row.Result)
	if showUnits {
		result += " " + row.Benchmark.Units
	}

	stddev := "-"
	if row.StdDev != nil {
		stddev = fmt.Sprintf("%.5f", *row.StdDev)
	}

	line := fmt.Sprintf("| %s | %s | %s | %s | %s |",
		row.Benchmark.Name, result, stddev,
		highlight(row.Change, th.Change, row.Benchmark.LessIsBetter),
		highlight(row.Trend, th.Trend, row.Benchmark.LessIsBetter),
	)

	if showComparison {
		line += " " + row.Relative.String() + " |"
	}

	return line + "\n"
}

func percent(v analytics.Value) string {
	if !v.Valid {
		return v.String()
	}

	return v.String() + "%"
}

// highlight marks a percentage beyond threshold in bold and labels it as
// an improvement or a regression.
func highlight(v analytics.Value, threshold float64, lessIsBetter bool) string {
	s := percent(v)

	if !v.Valid || threshold <= 0 || (v.Float < threshold && v.Float > -threshold) {
		return s
	}

	improved := v.Float < 0
	if !lessIsBetter {
		improved = !improved
	}

	if improved {
		return "**" + s + "** improved"
	}

	return "**" + s + "** regressed"
}
