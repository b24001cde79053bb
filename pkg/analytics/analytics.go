// Package analytics turns stored benchmark results into the derived data
// behind the speedcenter views: baselines, change and trend tables,
// timelines and comparison matrices.
//
// Every computation is a synchronous read against the Store. Nothing is
// cached between calls.
package analytics

import (
	"context"
	"errors"

	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidRequest is returned when a request is missing a required
	// entity or carries an out-of-range parameter.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoEnvironments is returned by views that need at least one
	// environment to exist.
	ErrNoEnvironments = errors.New("you need to configure at least one Environment")

	// ErrNoProjects is returned by views that need at least one (tracked)
	// project to exist.
	ErrNoProjects = errors.New("you need to configure at least one Project as default")
)

// Store is the subset of store.Store the analytics engine reads from.
type Store interface {
	GetExecutable(ctx context.Context, id uint) (*store.Executable, error)
	GetRevision(ctx context.Context, id uint) (*store.Revision, error)
	GetRevisionByCommit(
		ctx context.Context, projectID uint, commitID string,
	) (*store.Revision, error)
	GetBenchmarkByName(ctx context.Context, name string) (*store.Benchmark, error)
	GetEnvironmentByName(ctx context.Context, name string) (*store.Environment, error)
	GetResult(
		ctx context.Context,
		revisionID, executableID, benchmarkID, environmentID uint,
	) (*store.Result, error)

	ListProjects(ctx context.Context, filter store.ProjectFilter) ([]store.Project, error)
	ListRevisions(ctx context.Context, filter store.RevisionFilter) ([]store.Revision, error)
	LatestRevision(ctx context.Context, projectID uint) (*store.Revision, error)
	ListExecutables(
		ctx context.Context, filter store.ExecutableFilter,
	) ([]store.Executable, error)
	ListBenchmarks(ctx context.Context) ([]store.Benchmark, error)
	ListEnvironments(ctx context.Context) ([]store.Environment, error)
	ListResults(ctx context.Context, filter store.ResultFilter) ([]store.Result, error)
}

// Engine computes analytics from a Store.
type Engine struct {
	log   logrus.FieldLogger
	store Store
	cfg   config.AnalyticsConfig
}

// New creates an analytics engine. The configuration is copied.
func New(log logrus.FieldLogger, st Store, cfg config.AnalyticsConfig) *Engine {
	return &Engine{
		log:   log.WithField("component", "analytics"),
		store: st,
		cfg:   cfg,
	}
}

// resultsByBenchmark indexes results by benchmark id. The first result
// wins when a benchmark appears twice.
func resultsByBenchmark(results []store.Result) map[uint]store.Result {
	out := make(map[uint]store.Result, len(results))

	for _, r := range results {
		if _, ok := out[r.BenchmarkID]; !ok {
			out[r.BenchmarkID] = r
		}
	}

	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
