package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethpandaops/speedcenter/pkg/store"
)

// Baseline is a reference executable and revision other results are
// compared against.
type Baseline struct {
	Executable store.Executable `json:"executable"`
	Revision   store.Revision   `json:"revision"`
	Name       string           `json:"name"`
}

// Key returns the "{executableID}+{revisionID}" form used by the overview
// table's baseline parameter.
func (b *Baseline) Key() string {
	return BaselineRef{
		ExecutableID: b.Executable.ID,
		RevisionID:   b.Revision.ID,
	}.String()
}

// BaselineRef identifies a baseline by executable and revision ids.
type BaselineRef struct {
	ExecutableID uint
	RevisionID   uint
}

// String returns "{executableID}+{revisionID}".
func (r BaselineRef) String() string {
	return strconv.FormatUint(uint64(r.ExecutableID), 10) + "+" +
		strconv.FormatUint(uint64(r.RevisionID), 10)
}

// ParseBaselineRef parses "{executableID}+{revisionID}". An empty string
// or "undefined" means no baseline and yields nil without error.
func ParseBaselineRef(s string) (*BaselineRef, error) {
	if s == "" || s == "undefined" {
		return nil, nil
	}

	exe, rev, ok := strings.Cut(s, "+")
	if !ok {
		return nil, fmt.Errorf("%w: baseline %q is not exe+rev", ErrInvalidRequest, s)
	}

	exeID, err := strconv.ParseUint(exe, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline executable %q", ErrInvalidRequest, exe)
	}

	revID, err := strconv.ParseUint(rev, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline revision %q", ErrInvalidRequest, rev)
	}

	return &BaselineRef{ExecutableID: uint(exeID), RevisionID: uint(revID)}, nil
}

// Baselines resolves the ordered baseline list. A configured static list
// takes precedence over the tagged-revision fallback; entries that
// reference unknown executables or revisions are dropped. The configured
// default baseline, when present in the list, is moved to the front.
func (e *Engine) Baselines(ctx context.Context) ([]Baseline, error) {
	var (
		baselines []Baseline
		err       error
	)

	if len(e.cfg.Baselines) > 0 {
		baselines, err = e.configuredBaselines(ctx)
	} else {
		baselines, err = e.taggedBaselines(ctx)
	}

	if err != nil {
		return nil, err
	}

	if def := e.cfg.DefaultBaseline; def != nil {
		for i := range baselines {
			b := baselines[i]
			if b.Executable.ID != def.Executable || b.Revision.CommitID != def.Revision {
				continue
			}

			copy(baselines[1:i+1], baselines[:i])
			baselines[0] = b

			break
		}
	}

	return baselines, nil
}

func (e *Engine) configuredBaselines(ctx context.Context) ([]Baseline, error) {
	baselines := make([]Baseline, 0, len(e.cfg.Baselines))

	for i, entry := range e.cfg.Baselines {
		entryLog := e.log.WithField("entry", i).
			WithField("executable", entry.Executable).
			WithField("revision", entry.Revision)

		exe, err := e.store.GetExecutable(ctx, entry.Executable)
		if isNotFound(err) {
			entryLog.Warn("Skipping baseline with unknown executable")

			continue
		} else if err != nil {
			return nil, fmt.Errorf("resolving baseline executable: %w", err)
		}

		rev, err := e.store.GetRevisionByCommit(ctx, exe.ProjectID, entry.Revision)
		if isNotFound(err) {
			entryLog.Warn("Skipping baseline with unknown revision")

			continue
		} else if err != nil {
			return nil, fmt.Errorf("resolving baseline revision: %w", err)
		}

		baselines = append(baselines, Baseline{
			Executable: *exe,
			Revision:   *rev,
			Name:       exe.String() + " " + rev.Label(),
		})
	}

	return baselines, nil
}

func (e *Engine) taggedBaselines(ctx context.Context) ([]Baseline, error) {
	revs, err := e.store.ListRevisions(ctx, store.RevisionFilter{TaggedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing tagged revisions: %w", err)
	}

	exes := newExecutableCache(e.store)

	var baselines []Baseline

	for _, rev := range revs {
		projectExes, err := exes.forProject(ctx, rev.ProjectID)
		if err != nil {
			return nil, err
		}

		for _, exe := range projectExes {
			baselines = append(baselines, Baseline{
				Executable: exe,
				Revision:   rev,
				Name:       exe.String() + " " + rev.Tag,
			})
		}
	}

	return baselines, nil
}

// executableCache memoizes executables per project for one computation.
type executableCache struct {
	store     Store
	byProject map[uint][]store.Executable
}

func newExecutableCache(st Store) *executableCache {
	return &executableCache{
		store:     st,
		byProject: make(map[uint][]store.Executable, 4),
	}
}

func (c *executableCache) forProject(
	ctx context.Context, projectID uint,
) ([]store.Executable, error) {
	if exes, ok := c.byProject[projectID]; ok {
		return exes, nil
	}

	exes, err := c.store.ListExecutables(ctx, store.ExecutableFilter{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("listing executables of project %d: %w", projectID, err)
	}

	c.byProject[projectID] = exes

	return exes, nil
}
