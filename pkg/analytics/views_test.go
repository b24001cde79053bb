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

func TestDefaultEnvironment(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine(config.AnalyticsConfig{}).DefaultEnvironment(f.ctx)
	require.ErrorIs(t, err, analytics.ErrNoEnvironments)

	first := f.environment("first")
	second := f.environment("second")

	tests := []struct {
		name       string
		configured string
		want       uint
	}{
		{name: "first when unset", want: first.ID},
		{name: "configured", configured: "second", want: second.ID},
		{name: "unknown configured falls back", configured: "gone", want: first.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := f.engine(config.AnalyticsConfig{
				DefaultEnvironment: tt.configured,
			}).DefaultEnvironment(f.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.ID)
		})
	}
}

func TestDefaultExecutable(t *testing.T) {
	f := newFixture(t)

	untracked := f.project("cpython", false)
	cpy := f.executable(untracked, "cpython", "default")

	_, err := f.engine(config.AnalyticsConfig{}).DefaultExecutable(f.ctx)
	require.ErrorIs(t, err, analytics.ErrNoProjects)

	tracked := f.project("pypy", true)
	pypy := f.executable(tracked, "pypy-c", "default")

	exe, err := f.engine(config.AnalyticsConfig{}).DefaultExecutable(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, pypy.ID, exe.ID)

	exe, err = f.engine(config.AnalyticsConfig{DefaultExecutable: cpy.ID}).DefaultExecutable(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, cpy.ID, exe.ID)

	exe, err = f.engine(config.AnalyticsConfig{DefaultExecutable: 999}).DefaultExecutable(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, pypy.ID, exe.ID)
}

func TestOverview(t *testing.T) {
	f := newFixture(t)

	p := f.project("pypy", true)
	other := f.project("cpython", true)
	exe := f.executable(p, "pypy-c", "default")
	f.executable(other, "cpython", "default")
	env := f.environment("Env")
	host := f.environment("host")

	var revs []*store.Revision
	for i := range 25 {
		tag := ""
		if i == 0 {
			tag = "v0.1"
		}

		revs = append(revs, f.revision(p, fmt.Sprintf("r%02d", i), tag, i))
	}

	f.revision(other, "c1", "", 0)

	engine := f.engine(config.AnalyticsConfig{})

	view, err := engine.Overview(f.ctx, analytics.OverviewRequest{})
	require.NoError(t, err)

	assert.Empty(t, view.Error)
	assert.Equal(t, env.ID, view.DefaultEnvironment.ID)
	assert.Equal(t, analytics.DefaultTrend, view.DefaultTrend)
	assert.Equal(t, analytics.TrendOptions, view.Trends)
	assert.Equal(t, exe.ID, view.DefaultExecutable.ID)
	require.Len(t, view.Revisions, 20)
	assert.Equal(t, revs[24].ID, view.SelectedRevision.ID)
	require.NotEmpty(t, view.Baselines)
	assert.Equal(t, view.Baselines[0].Key(), view.DefaultBaseline)
	assert.Equal(t, "pypy", view.ProjectMatrix[exe.ID])
	assert.Len(t, view.RevisionBoxes["pypy"], 20)
	assert.Len(t, view.RevisionBoxes["cpython"], 1)

	view, err = engine.Overview(f.ctx, analytics.OverviewRequest{
		Host:     "host",
		Trend:    50,
		Baseline: "7+8",
		Revision: "r01",
	})
	require.NoError(t, err)

	assert.Equal(t, host.ID, view.DefaultEnvironment.ID)
	assert.Equal(t, 50, view.DefaultTrend)
	assert.Equal(t, "7+8", view.DefaultBaseline)
	assert.Equal(t, revs[1].ID, view.SelectedRevision.ID)
	require.Len(t, view.Revisions, 21, "an older selected revision is appended")
	assert.Equal(t, revs[1].ID, view.Revisions[20].ID)

	// Unknown selections fall back to the defaults.
	view, err = engine.Overview(f.ctx, analytics.OverviewRequest{
		Trend:      7,
		Executable: 999,
		Revision:   "nope",
	})
	require.NoError(t, err)
	assert.Equal(t, analytics.DefaultTrend, view.DefaultTrend)
	assert.Equal(t, exe.ID, view.DefaultExecutable.ID)
	assert.Equal(t, revs[24].ID, view.SelectedRevision.ID)
}

func TestOverview_ProjectWithoutRevisions(t *testing.T) {
	f := newFixture(t)

	p := f.project("pypy", true)
	f.executable(p, "pypy-c", "default")
	f.environment("Env")

	view, err := f.engine(config.AnalyticsConfig{}).Overview(f.ctx, analytics.OverviewRequest{})
	require.NoError(t, err)
	assert.Equal(t, `No data found for project "pypy"`, view.Error)
	assert.Empty(t, view.Revisions)
}

func TestTimelineView(t *testing.T) {
	f := newFixture(t)
	engine := f.engine(config.AnalyticsConfig{})

	_, err := engine.TimelineView(f.ctx, analytics.TimelineViewRequest{})
	require.ErrorIs(t, err, analytics.ErrNoEnvironments)

	f.environment("Env")

	_, err = engine.TimelineView(f.ctx, analytics.TimelineViewRequest{})
	require.ErrorIs(t, err, analytics.ErrNoProjects)

	p := f.project("pypy", true)
	exeA := f.executable(p, "pypy-c", "default")
	exeB := f.executable(p, "pypy-c-jit", "default")
	f.benchmark("richards", "seconds")
	f.revision(p, "r1", "v1.0", 0)

	view, err := engine.TimelineView(f.ctx, analytics.TimelineViewRequest{})
	require.NoError(t, err)

	assert.Equal(t, p.ID, view.DefaultProject.ID)
	assert.Equal(t, analytics.GridBenchmark, view.DefaultBenchmark)
	assert.True(t, view.DefaultBaseline)
	require.NotNil(t, view.Baseline)
	assert.Len(t, view.CheckedExecutables, 2)
	assert.Equal(t, []int{10, 50, 200, 1000}, view.RevisionOptions)
	assert.Equal(t, analytics.DefaultTimelineRevision, view.DefaultRevisions)

	off := false
	view, err = engine.TimelineView(f.ctx, analytics.TimelineViewRequest{
		Baseline:    &off,
		Benchmark:   "richards",
		Executables: []uint{exeB.ID, 999},
		Revisions:   30,
	})
	require.NoError(t, err)

	assert.False(t, view.DefaultBaseline)
	assert.Equal(t, "richards", view.DefaultBenchmark)
	require.Len(t, view.CheckedExecutables, 1)
	assert.Equal(t, exeB.ID, view.CheckedExecutables[0].ID)
	assert.Equal(t, []int{10, 50, 200, 1000, 30}, view.RevisionOptions)
	assert.Equal(t, 30, view.DefaultRevisions)
	assert.Equal(t, []int{10, 50, 200, 1000}, analytics.RevisionOptions)

	view, err = engine.TimelineView(f.ctx, analytics.TimelineViewRequest{Revisions: 50})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 50, 200, 1000}, view.RevisionOptions)
	assert.Equal(t, exeA.ID, view.CheckedExecutables[0].ID)

	_, err = engine.TimelineView(f.ctx, analytics.TimelineViewRequest{Benchmark: "missing"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTimelineView_NoBaselineDisablesToggle(t *testing.T) {
	f := newFixture(t)

	p := f.project("pypy", true)
	f.executable(p, "pypy-c", "default")
	f.environment("Env")
	f.revision(p, "r1", "", 0)

	view, err := f.engine(config.AnalyticsConfig{}).TimelineView(f.ctx, analytics.TimelineViewRequest{})
	require.NoError(t, err)
	assert.Nil(t, view.Baseline)
	assert.False(t, view.DefaultBaseline)
}
