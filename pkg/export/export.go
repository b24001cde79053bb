// Package export publishes JSON snapshots of the analytics views so they
// can be served without a running speedcenter instance.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Store is the subset of store.Store the exporter enumerates.
type Store interface {
	ListEnvironments(ctx context.Context) ([]store.Environment, error)
	ListExecutables(
		ctx context.Context, filter store.ExecutableFilter,
	) ([]store.Executable, error)
	LatestRevision(ctx context.Context, projectID uint) (*store.Revision, error)
	ListBenchmarks(ctx context.Context) ([]store.Benchmark, error)
}

// Index is the root object of an export.
type Index struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Environments []store.Environment `json:"environments"`
	Executables  []store.Executable  `json:"executables"`
}

// Exporter computes and publishes snapshots.
type Exporter struct {
	log       logrus.FieldLogger
	store     Store
	engine    *analytics.Engine
	publisher Publisher
	cfg       *config.ExportConfig
	now       func() time.Time
}

// New creates an Exporter.
func New(
	log logrus.FieldLogger,
	st Store,
	engine *analytics.Engine,
	publisher Publisher,
	cfg *config.ExportConfig,
) *Exporter {
	return &Exporter{
		log:       log.WithField("component", "export"),
		store:     st,
		engine:    engine,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run publishes the index, the baselines and, per environment, the
// overview table of every tracked executable, the timeline grid and one
// timeline per benchmark.
// Environments are exported concurrently. It returns the number of
// objects published.
func (x *Exporter) Run(ctx context.Context) (int, error) {
	envs, err := x.store.ListEnvironments(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing environments: %w", err)
	}

	exes, err := x.store.ListExecutables(ctx, store.ExecutableFilter{TrackedOnly: true})
	if err != nil {
		return 0, fmt.Errorf("listing executables: %w", err)
	}

	baselines, err := x.engine.Baselines(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving baselines: %w", err)
	}

	var published atomic.Int64

	publish := func(ctx context.Context, key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}

		if err := x.publisher.Publish(ctx, key, data); err != nil {
			return err
		}

		published.Add(1)

		return nil
	}

	var baselineRef *analytics.BaselineRef
	if len(baselines) > 0 {
		baselineRef = &analytics.BaselineRef{
			ExecutableID: baselines[0].Executable.ID,
			RevisionID:   baselines[0].Revision.ID,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Concurrency)

	for i := range envs {
		env := &envs[i]

		g.Go(func() error {
			if err := x.exportEnvironment(gctx, env, exes, baselineRef, publish); err != nil {
				return fmt.Errorf("environment %s: %w", env.Name, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(published.Load()), err
	}

	if err := publish(ctx, "baselines.json", baselines); err != nil {
		return int(published.Load()), err
	}

	// The index goes last so readers never see a half-written export.
	index := Index{
		GeneratedAt:  x.now().UTC(),
		Environments: envs,
		Executables:  exes,
	}

	if err := publish(ctx, "index.json", index); err != nil {
		return int(published.Load()), err
	}

	x.log.WithFields(logrus.Fields{
		"environments": len(envs),
		"objects":      published.Load(),
	}).Info("Export completed")

	return int(published.Load()), nil
}

func (x *Exporter) exportEnvironment(
	ctx context.Context,
	env *store.Environment,
	exes []store.Executable,
	baseline *analytics.BaselineRef,
	publish func(context.Context, string, any) error,
) error {
	prefix := "environments/" + strconv.FormatUint(uint64(env.ID), 10)
	exeIDs := make([]uint, 0, len(exes))

	for i := range exes {
		exe := &exes[i]
		exeIDs = append(exeIDs, exe.ID)

		rev, err := x.store.LatestRevision(ctx, exe.ProjectID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		} else if err != nil {
			return err
		}

		table, err := x.engine.Table(ctx, analytics.TableRequest{
			Executable:  exe,
			Environment: env,
			Revision:    rev,
			TrendWindow: analytics.DefaultTrend,
			Baseline:    baseline,
		})
		if err != nil {
			return fmt.Errorf("table for executable %d: %w", exe.ID, err)
		}

		if table.Empty() {
			continue
		}

		key := prefix + "/overview/" + strconv.FormatUint(uint64(exe.ID), 10) + ".json"
		if err := publish(ctx, key, table); err != nil {
			return err
		}
	}

	grid, err := x.engine.Timelines(ctx, analytics.TimelineRequest{
		Benchmark:   analytics.GridBenchmark,
		Executables: exeIDs,
		Environment: env,
		Baseline:    baseline != nil,
	})
	if err != nil {
		return fmt.Errorf("timeline grid: %w", err)
	}

	if err := publish(ctx, prefix+"/timelines.json", grid); err != nil {
		return err
	}

	revisions := x.cfg.Revisions
	if revisions <= 0 {
		revisions = analytics.DefaultTimelineRevision
	}

	benches, err := x.store.ListBenchmarks(ctx)
	if err != nil {
		return fmt.Errorf("listing benchmarks: %w", err)
	}

	for _, bench := range benches {
		set, err := x.engine.Timelines(ctx, analytics.TimelineRequest{
			Benchmark:   bench.Name,
			Executables: exeIDs,
			Environment: env,
			Revisions:   revisions,
			Baseline:    baseline != nil,
		})
		if err != nil {
			return fmt.Errorf("timeline %s: %w", bench.Name, err)
		}

		if len(set.Timelines) == 0 {
			continue
		}

		key := prefix + "/timelines/" + strconv.FormatUint(uint64(bench.ID), 10) + ".json"
		if err := publish(ctx, key, set); err != nil {
			return err
		}
	}

	return nil
}
