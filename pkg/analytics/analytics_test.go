package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
)

// epoch is the date of the first revision in every fixture.
var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	log   logrus.FieldLogger
	store store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return &fixture{
		t:     t,
		ctx:   context.Background(),
		log:   log,
		store: s,
	}
}

func (f *fixture) engine(cfg config.AnalyticsConfig) *analytics.Engine {
	return analytics.New(f.log, f.store, cfg)
}

func (f *fixture) project(name string, track bool) *store.Project {
	f.t.Helper()

	p, err := f.store.GetOrCreateProject(f.ctx, name)
	require.NoError(f.t, err)

	p.Track = track
	require.NoError(f.t, f.store.SaveProject(f.ctx, p))

	return p
}

// revision creates a revision dated hours after epoch.
func (f *fixture) revision(p *store.Project, commit, tag string, hours int) *store.Revision {
	f.t.Helper()

	rev, _, err := f.store.GetOrCreateRevision(f.ctx, p.ID, commit)
	require.NoError(f.t, err)

	rev.Tag = tag
	rev.Date = epoch.Add(time.Duration(hours) * time.Hour)
	require.NoError(f.t, f.store.SaveRevision(f.ctx, rev))

	return rev
}

func (f *fixture) executable(p *store.Project, name, coptions string) *store.Executable {
	f.t.Helper()

	exe, err := f.store.GetOrCreateExecutable(f.ctx, p.ID, name, coptions)
	require.NoError(f.t, err)

	return exe
}

func (f *fixture) benchmark(name, units string) *store.Benchmark {
	f.t.Helper()

	bench, err := f.store.GetOrCreateBenchmark(f.ctx, &store.Benchmark{
		Name:         name,
		Units:        units,
		LessIsBetter: true,
	})
	require.NoError(f.t, err)

	return bench
}

func (f *fixture) environment(name string) *store.Environment {
	f.t.Helper()

	env := &store.Environment{Name: name}
	require.NoError(f.t, f.store.UpsertEnvironment(f.ctx, env))

	return env
}

func (f *fixture) result(
	rev *store.Revision,
	exe *store.Executable,
	bench *store.Benchmark,
	env *store.Environment,
	value float64,
) {
	f.t.Helper()

	require.NoError(f.t, f.store.UpsertResult(f.ctx, &store.Result{
		RevisionID:    rev.ID,
		ExecutableID:  exe.ID,
		BenchmarkID:   bench.ID,
		EnvironmentID: env.ID,
		Value:         value,
		Date:          rev.Date,
	}))
}
