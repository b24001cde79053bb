package analytics

import (
	"context"
	"fmt"

	"github.com/aclements/go-moremath/stats"

	"github.com/ethpandaops/speedcenter/pkg/store"
)

// TableRequest selects the overview table to compute.
type TableRequest struct {
	Executable  *store.Executable
	Environment *store.Environment
	Revision    *store.Revision
	TrendWindow int
	Baseline    *BaselineRef
}

// TableRow holds the derived values of one benchmark.
type TableRow struct {
	Benchmark store.Benchmark `json:"benchmark"`
	Result    float64         `json:"result"`
	StdDev    *float64        `json:"std_dev"`
	Change    Value           `json:"change"`
	Trend     Value           `json:"trend"`
	Relative  Value           `json:"relative"`
}

// Totals aggregates change and trend over all rows that had a comparator.
type Totals struct {
	Change Value `json:"change"`
	Trend  Value `json:"trend"`
}

// Table is the change/trend table of one executable on one environment at
// one revision.
type Table struct {
	Executable     store.Executable  `json:"executable"`
	Environment    store.Environment `json:"environment"`
	Revision       store.Revision    `json:"revision"`
	TrendWindow    int               `json:"trend_window"`
	ShowUnits      bool              `json:"show_units"`
	ShowComparison bool              `json:"show_comparison"`
	Rows           []TableRow        `json:"rows"`
	Totals         Totals            `json:"totals"`
}

// Empty reports whether the current revision has no results, which views
// render as "no results".
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// trendRevisions returns the trend comparators: revs[window-2 : window+1]
// with both bounds clamped to revs.
func trendRevisions(revs []store.Revision, window int) []store.Revision {
	start := max(window-2, 0)
	end := min(window+1, len(revs))

	if start >= end {
		return nil
	}

	return revs[start:end]
}

// Table computes per-benchmark change, trend and baseline-relative values.
func (e *Engine) Table(ctx context.Context, req TableRequest) (*Table, error) {
	if req.Executable == nil || req.Environment == nil || req.Revision == nil {
		return nil, fmt.Errorf(
			"%w: executable, environment and revision are required", ErrInvalidRequest,
		)
	}

	if req.TrendWindow < 1 {
		return nil, fmt.Errorf(
			"%w: trend window must be positive, got %d", ErrInvalidRequest, req.TrendWindow,
		)
	}

	revs, err := e.store.ListRevisions(ctx, store.RevisionFilter{
		ProjectID:  req.Executable.ProjectID,
		BeforeOrAt: &req.Revision.Date,
		Limit:      req.TrendWindow + 1,
	})
	if err != nil {
		return nil, err
	}

	table := &Table{
		Executable:  *req.Executable,
		Environment: *req.Environment,
		Revision:    *req.Revision,
		TrendWindow: req.TrendWindow,
		Rows:        []TableRow{},
		Totals:      Totals{Change: Unavailable, Trend: Unavailable},
	}

	if len(revs) == 0 {
		return table, nil
	}

	current := revs[0]
	table.Revision = current

	results := e.revisionResults(req.Executable.ID, req.Environment.ID)

	currentResults, err := results(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	if len(currentResults) == 0 {
		return table, nil
	}

	var (
		changeResults map[uint]store.Result
		trendResults  []map[uint]store.Result
	)

	if len(revs) > 1 {
		if changeResults, err = results(ctx, revs[1].ID); err != nil {
			return nil, err
		}

		for _, rev := range trendRevisions(revs, req.TrendWindow) {
			past, err := results(ctx, rev.ID)
			if err != nil {
				return nil, err
			}

			trendResults = append(trendResults, past)
		}
	}

	var baseResults map[uint]store.Result

	if req.Baseline != nil {
		if baseResults, err = e.baselineResults(ctx, req.Baseline, req.Environment.ID); err != nil {
			return nil, err
		}

		table.ShowComparison = len(baseResults) > 0
	}

	benches, err := e.store.ListBenchmarks(ctx)
	if err != nil {
		return nil, err
	}

	var changeRatios, trendRatios []float64

	for _, bench := range benches {
		if bench.Units != store.DefaultUnits {
			table.ShowUnits = true
		}

		res, ok := currentResults[bench.ID]
		if !ok {
			continue
		}

		row := TableRow{
			Benchmark: bench,
			Result:    res.Value,
			StdDev:    res.StdDev,
			Change:    Number(0),
			Trend:     Unavailable,
			Relative:  Number(0),
		}

		// Totals only include rows whose own comparison is defined.
		if prior, ok := changeResults[bench.ID]; ok {
			row.Change = percentChange(res.Value, prior.Value)
			if row.Change.Valid {
				changeRatios = append(changeRatios, res.Value/prior.Value)
			}
		}

		var past []float64

		for _, results := range trendResults {
			if r, ok := results[bench.ID]; ok {
				past = append(past, r.Value)
			}
		}

		if len(past) > 0 {
			avg := stats.Mean(past)
			row.Trend = percentChange(res.Value, avg)

			if row.Trend.Valid {
				trendRatios = append(trendRatios, res.Value/avg)
			}
		}

		if base, ok := baseResults[bench.ID]; ok {
			if res.Value == 0 {
				row.Relative = Unavailable
			} else {
				row.Relative = Number(base.Value / res.Value)
			}
		}

		table.Rows = append(table.Rows, row)
	}

	table.Totals = Totals{
		Change: ratioTotal(changeRatios),
		Trend:  ratioTotal(trendRatios),
	}

	return table, nil
}

// revisionResults returns a loader of one revision's results for a fixed
// executable and environment, indexed by benchmark.
func (e *Engine) revisionResults(
	executableID, environmentID uint,
) func(ctx context.Context, revisionID uint) (map[uint]store.Result, error) {
	return func(ctx context.Context, revisionID uint) (map[uint]store.Result, error) {
		results, err := e.store.ListResults(ctx, store.ResultFilter{
			RevisionID:    revisionID,
			ExecutableID:  executableID,
			EnvironmentID: environmentID,
		})
		if err != nil {
			return nil, err
		}

		return resultsByBenchmark(results), nil
	}
}

// baselineResults loads the results of a baseline reference. Unknown
// executable or revision ids surface as store.ErrNotFound.
func (e *Engine) baselineResults(
	ctx context.Context, ref *BaselineRef, environmentID uint,
) (map[uint]store.Result, error) {
	if _, err := e.store.GetExecutable(ctx, ref.ExecutableID); err != nil {
		return nil, err
	}

	if _, err := e.store.GetRevision(ctx, ref.RevisionID); err != nil {
		return nil, err
	}

	return e.revisionResults(ref.ExecutableID, environmentID)(ctx, ref.RevisionID)
}
