// Package ingest stores submitted benchmark results, creating the project,
// benchmark, revision and executable they reference on first sight.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/commitlog"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/sirupsen/logrus"
)

// EnvironmentNotFoundError is returned for submissions naming an
// environment that was never registered.
type EnvironmentNotFoundError struct {
	Name string
}

func (e *EnvironmentNotFoundError) Error() string {
	return fmt.Sprintf("Environment %s not found", e.Name)
}

// Unwrap lets callers match store.ErrNotFound.
func (e *EnvironmentNotFoundError) Unwrap() error {
	return store.ErrNotFound
}

// Store is the subset of store.Store used by ingestion.
type Store interface {
	GetEnvironmentByName(ctx context.Context, name string) (*store.Environment, error)
	GetOrCreateProject(ctx context.Context, name string) (*store.Project, error)
	GetOrCreateBenchmark(ctx context.Context, bench *store.Benchmark) (*store.Benchmark, error)
	GetRevisionByCommit(
		ctx context.Context, projectID uint, commitID string,
	) (*store.Revision, error)
	CreateRevision(ctx context.Context, rev *store.Revision) (*store.Revision, bool, error)
	GetOrCreateExecutable(
		ctx context.Context, projectID uint, name, coptions string,
	) (*store.Executable, error)
	UpsertResult(ctx context.Context, result *store.Result) error
}

// Ingester stores submissions.
type Ingester struct {
	log   logrus.FieldLogger
	store Store
	logs  commitlog.Provider
	now   func() time.Time
}

// New creates an Ingester. logs fills in the details of new revisions
// and may be commitlog.Noop.
func New(log logrus.FieldLogger, st Store, logs commitlog.Provider) *Ingester {
	return &Ingester{
		log:   log.WithField("component", "ingest"),
		store: st,
		logs:  logs,
		now:   time.Now,
	}
}

// Add stores one submission, overwriting any result already stored for the
// same revision, executable, benchmark and environment.
func (i *Ingester) Add(ctx context.Context, sub *Submission) (*store.Result, error) {
	env, err := i.store.GetEnvironmentByName(ctx, sub.Environment)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &EnvironmentNotFoundError{Name: sub.Environment}
	} else if err != nil {
		return nil, err
	}

	project, err := i.store.GetOrCreateProject(ctx, sub.Project)
	if err != nil {
		return nil, err
	}

	bench, err := i.store.GetOrCreateBenchmark(ctx, &store.Benchmark{
		Name:         sub.Benchmark,
		Units:        store.DefaultUnits,
		LessIsBetter: true,
	})
	if err != nil {
		return nil, err
	}

	rev, err := i.revision(ctx, project, sub)
	if err != nil {
		return nil, err
	}

	exe, err := i.store.GetOrCreateExecutable(
		ctx, project.ID, sub.ExecutableName, sub.ExecutableCoptions,
	)
	if err != nil {
		return nil, err
	}

	result := &store.Result{
		RevisionID:    rev.ID,
		ExecutableID:  exe.ID,
		BenchmarkID:   bench.ID,
		EnvironmentID: env.ID,
		Value:         sub.ResultValue,
		StdDev:        sub.StdDev,
		ValMin:        sub.Min,
		ValMax:        sub.Max,
		Date:          rev.Date,
	}

	if sub.ResultDate != nil {
		result.Date = sub.ResultDate.UTC()
	}

	if err := i.store.UpsertResult(ctx, result); err != nil {
		return nil, err
	}

	i.log.WithFields(logrus.Fields{
		"project":     project.Name,
		"commit":      rev.CommitID,
		"executable":  exe.String(),
		"benchmark":   bench.Name,
		"environment": env.Name,
	}).Debug("Result saved")

	return result, nil
}

// AddAll stores submissions in order and stops at the first failure.
func (i *Ingester) AddAll(ctx context.Context, subs []*Submission) (int, error) {
	for n, sub := range subs {
		if _, err := i.Add(ctx, sub); err != nil {
			return n, fmt.Errorf("submission %d: %w", n, err)
		}
	}

	return len(subs), nil
}

// revision returns the stored revision of the submission's commit. A new
// revision is described before it is inserted, so it never becomes
// visible without its date.
func (i *Ingester) revision(
	ctx context.Context, project *store.Project, sub *Submission,
) (*store.Revision, error) {
	rev, err := i.store.GetRevisionByCommit(ctx, project.ID, sub.CommitID)
	if err == nil {
		return rev, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rev = &store.Revision{ProjectID: project.ID, CommitID: sub.CommitID}
	i.describeRevision(ctx, project, rev, sub.RevisionDate)

	rev, _, err = i.store.CreateRevision(ctx, rev)
	if err != nil {
		return nil, err
	}

	return rev, nil
}

// describeRevision sets the date, author and message of a new revision
// from the submission, else the commit log, else the current time.
func (i *Ingester) describeRevision(
	ctx context.Context,
	project *store.Project,
	rev *store.Revision,
	date *time.Time,
) {
	if date != nil {
		rev.Date = date.UTC()

		return
	}

	entries, err := i.logs.Logs(ctx, project, rev.CommitID, rev.CommitID)
	if err != nil {
		i.log.WithError(err).
			WithField("commit", rev.CommitID).
			Warn("Failed to fetch revision info")
	} else if len(entries) > 0 {
		rev.Author = entries[0].Author
		rev.Message = entries[0].Message
		rev.Date = entries[0].Date.UTC()
	}

	if rev.Date.IsZero() {
		rev.Date = i.now().UTC().Truncate(time.Second)
	}
}
