package analytics_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
)

func rowFor(t *testing.T, table *analytics.Table, bench string) analytics.TableRow {
	t.Helper()

	for _, row := range table.Rows {
		if row.Benchmark.Name == bench {
			return row
		}
	}

	require.FailNow(t, "row not found", bench)

	return analytics.TableRow{}
}

func TestTable_ChangeAgainstPriorRevision(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")

	r1 := f.revision(p, "r1", "", 0)
	r2 := f.revision(p, "r2", "", 1)
	f.result(r1, exe, bench, env, 100)
	f.result(r2, exe, bench, env, 120)

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    r2,
		TrendWindow: 10,
	})
	require.NoError(t, err)
	require.False(t, table.Empty())
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, 120.0, row.Result)
	assert.Equal(t, analytics.Number(20), row.Change)
	assert.Equal(t, r2.ID, table.Revision.ID)
	assert.InDelta(t, 20.0, table.Totals.Change.Float, 1e-9)
}

func TestTable_TotalsAverageRatios(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	fast := f.benchmark("fast", "seconds")
	slow := f.benchmark("slow", "seconds")

	prev := f.revision(p, "r1", "", 0)
	cur := f.revision(p, "r2", "", 1)

	f.result(prev, exe, fast, env, 100)
	f.result(cur, exe, fast, env, 110)
	f.result(prev, exe, slow, env, 50)
	f.result(cur, exe, slow, env, 65)

	// W=3 over two revisions makes revs[1:2] the trend comparators.
	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    cur,
		TrendWindow: 3,
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	assert.InDelta(t, 10.0, rowFor(t, table, "fast").Trend.Float, 1e-9)
	assert.InDelta(t, 30.0, rowFor(t, table, "slow").Trend.Float, 1e-9)

	// ((1.10 + 1.30) / 2 - 1) * 100
	require.True(t, table.Totals.Trend.Valid)
	assert.InDelta(t, 20.0, table.Totals.Trend.Float, 1e-9)
	assert.InDelta(t, 20.0, table.Totals.Change.Float, 1e-9)
}

// The trend comparators are revs[W-2:W+1], three revisions at most, not
// the whole window.
func TestTable_TrendUsesThreeRevisionWindow(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")

	var revs []*store.Revision
	for i := range 12 {
		revs = append(revs, f.revision(p, fmt.Sprintf("r%02d", i), "", i))
	}

	// Newest first with W=10 the list is r11..r1; comparators are r3, r2, r1.
	for i, rev := range revs {
		value := 200.0
		if i >= 1 && i <= 3 {
			value = 100
		}

		if i == 11 {
			value = 110
		}

		f.result(rev, exe, bench, env, value)
	}

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    revs[11],
		TrendWindow: 10,
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	assert.InDelta(t, 10.0, table.Rows[0].Trend.Float, 1e-9)
	assert.InDelta(t, -45.0, table.Rows[0].Change.Float, 1e-9)
}

func TestTable_TrendWindowBeyondHistory(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")

	r1 := f.revision(p, "r1", "", 0)
	r2 := f.revision(p, "r2", "", 1)
	f.result(r1, exe, bench, env, 100)
	f.result(r2, exe, bench, env, 90)

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    r2,
		TrendWindow: 50,
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	assert.InDelta(t, -10.0, table.Rows[0].Change.Float, 1e-9)
	assert.False(t, table.Rows[0].Trend.Valid)
	assert.False(t, table.Totals.Trend.Valid)
}

func TestTable_SingleRevision(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")

	r1 := f.revision(p, "r1", "", 0)
	f.result(r1, exe, bench, env, 100)

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    r1,
		TrendWindow: 10,
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, analytics.Number(0), row.Change)
	assert.Equal(t, analytics.Unavailable, row.Trend)
	assert.Equal(t, analytics.Number(0), row.Relative)
	assert.Equal(t, analytics.Unavailable, table.Totals.Change)
	assert.Equal(t, analytics.Unavailable, table.Totals.Trend)
}

func TestTable_ZeroReferenceIsUnavailable(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")
	zero := f.benchmark("Z", "seconds")

	prev := f.revision(p, "r1", "", 0)
	cur := f.revision(p, "r2", "", 1)
	f.result(prev, exe, bench, env, 0)
	f.result(cur, exe, bench, env, 50)
	f.result(prev, exe, zero, env, 10)
	f.result(cur, exe, zero, env, 0)

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    cur,
		TrendWindow: 3,
		Baseline:    &analytics.BaselineRef{ExecutableID: exe.ID, RevisionID: prev.ID},
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	row := rowFor(t, table, "B")
	assert.False(t, row.Change.Valid)
	assert.False(t, row.Trend.Valid)
	assert.Equal(t, analytics.Number(0), row.Relative)

	// A zero current value has no baseline ratio.
	zrow := rowFor(t, table, "Z")
	assert.Equal(t, analytics.Number(-100), zrow.Change)
	assert.False(t, zrow.Relative.Valid)

	// Only Z contributed a ratio of 0/10.
	assert.InDelta(t, -100.0, table.Totals.Change.Float, 1e-9)
}

func TestTable_TotalsSkipUnavailableRows(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")
	huge := f.benchmark("H", "seconds")

	prev := f.revision(p, "r1", "", 0)
	cur := f.revision(p, "r2", "", 1)
	f.result(prev, exe, bench, env, 100)
	f.result(cur, exe, bench, env, 110)

	// The difference overflows, so H has no defined change although its
	// reference is non-zero.
	f.result(prev, exe, huge, env, 1e308)
	f.result(cur, exe, huge, env, -1e308)

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    cur,
		TrendWindow: 10,
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	assert.False(t, rowFor(t, table, "H").Change.Valid)
	assert.InDelta(t, 10.0, rowFor(t, table, "B").Change.Float, 1e-9)

	require.True(t, table.Totals.Change.Valid)
	assert.InDelta(t, 10.0, table.Totals.Change.Float, 1e-9)
}

func TestTable_Empty(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	other := f.executable(p, "E2", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")

	r1 := f.revision(p, "r1", "", 0)
	f.result(r1, other, bench, env, 100)

	table, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    r1,
		TrendWindow: 10,
	})
	require.NoError(t, err)
	assert.True(t, table.Empty())
	assert.NotNil(t, table.Rows)
}

func TestTable_BaselineRelative(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	base := f.executable(p, "cpython", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")
	f.benchmark("size", "bytes")

	tagged := f.revision(p, "r1", "v1.0", 0)
	cur := f.revision(p, "r2", "", 1)
	f.result(tagged, base, bench, env, 300)
	f.result(cur, exe, bench, env, 100)

	engine := f.engine(config.AnalyticsConfig{})

	table, err := engine.Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    cur,
		TrendWindow: 10,
		Baseline:    &analytics.BaselineRef{ExecutableID: base.ID, RevisionID: tagged.ID},
	})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	assert.Equal(t, analytics.Number(3), table.Rows[0].Relative)
	assert.True(t, table.ShowComparison)
	assert.True(t, table.ShowUnits)

	// A baseline without results hides the comparison column.
	table, err = engine.Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    cur,
		TrendWindow: 10,
		Baseline:    &analytics.BaselineRef{ExecutableID: exe.ID, RevisionID: tagged.ID},
	})
	require.NoError(t, err)
	assert.False(t, table.ShowComparison)
	assert.Equal(t, analytics.Number(0), table.Rows[0].Relative)
}

func TestTable_UnknownBaselineIsNotFound(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	bench := f.benchmark("B", "seconds")
	r1 := f.revision(p, "r1", "", 0)
	f.result(r1, exe, bench, env, 1)

	_, err := f.engine(config.AnalyticsConfig{}).Table(f.ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    r1,
		TrendWindow: 10,
		Baseline:    &analytics.BaselineRef{ExecutableID: exe.ID, RevisionID: 404},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTable_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	p := f.project("P", true)
	exe := f.executable(p, "E", "default")
	env := f.environment("Env")
	r1 := f.revision(p, "r1", "", 0)

	engine := f.engine(config.AnalyticsConfig{})

	tests := []struct {
		name string
		req  analytics.TableRequest
	}{
		{
			name: "missing executable",
			req:  analytics.TableRequest{Environment: env, Revision: r1, TrendWindow: 10},
		},
		{
			name: "missing revision",
			req:  analytics.TableRequest{Executable: exe, Environment: env, TrendWindow: 10},
		},
		{
			name: "zero trend window",
			req:  analytics.TableRequest{Executable: exe, Environment: env, Revision: r1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Table(f.ctx, tt.req)
			require.ErrorIs(t, err, analytics.ErrInvalidRequest)
		})
	}
}
