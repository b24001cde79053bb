package analytics

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethpandaops/speedcenter/pkg/store"
)

// Overview and timeline view constants.
const (
	DefaultTrend            = 10
	DefaultChangeThreshold  = 3
	DefaultTrendThreshold   = 3
	DefaultTimelineRevision = 200

	overviewRevisionLimit = 20
)

var (
	// TrendOptions are the selectable trend windows of the overview.
	TrendOptions = []int{5, 10, 20, 50, 100}

	// RevisionOptions are the selectable revision counts of the timeline.
	RevisionOptions = []int{10, 50, 200, 1000}
)

// DefaultEnvironment returns the configured default environment when it
// exists, else the first environment.
func (e *Engine) DefaultEnvironment(ctx context.Context) (*store.Environment, error) {
	envs, err := e.store.ListEnvironments(ctx)
	if err != nil {
		return nil, err
	}

	if len(envs) == 0 {
		return nil, ErrNoEnvironments
	}

	if name := e.cfg.DefaultEnvironment; name != "" {
		env, err := e.store.GetEnvironmentByName(ctx, name)
		if err == nil {
			return env, nil
		} else if !isNotFound(err) {
			return nil, err
		}

		e.log.WithField("environment", name).Warn("Configured default environment not found")
	}

	return &envs[0], nil
}

// ResolveEnvironment returns the environment named host, falling back to
// the default environment when host is empty or unknown.
func (e *Engine) ResolveEnvironment(ctx context.Context, host string) (*store.Environment, error) {
	def, err := e.DefaultEnvironment(ctx)
	if err != nil {
		return nil, err
	}

	if host == "" || host == def.Name {
		return def, nil
	}

	env, err := e.store.GetEnvironmentByName(ctx, host)
	if isNotFound(err) {
		return def, nil
	} else if err != nil {
		return nil, err
	}

	return env, nil
}

// DefaultExecutable returns the configured default executable when it
// exists, else the first executable of a tracked project.
func (e *Engine) DefaultExecutable(ctx context.Context) (*store.Executable, error) {
	if id := e.cfg.DefaultExecutable; id != 0 {
		exe, err := e.store.GetExecutable(ctx, id)
		if err == nil {
			return exe, nil
		} else if !isNotFound(err) {
			return nil, err
		}

		e.log.WithField("executable", id).Warn("Configured default executable not found")
	}

	exes, err := e.store.ListExecutables(ctx, store.ExecutableFilter{TrackedOnly: true})
	if err != nil {
		return nil, err
	}

	if len(exes) == 0 {
		return nil, ErrNoProjects
	}

	return &exes[0], nil
}

// OverviewRequest carries the optional overview selections. Zero values
// select the defaults.
type OverviewRequest struct {
	Host       string
	Trend      int
	Executable uint
	Baseline   string
	Revision   string
}

// Overview is the overview view model.
type Overview struct {
	// Error is set instead of the revision fields when the selected
	// executable's project has no revisions.
	Error string `json:"error,omitempty"`

	DefaultEnvironment store.Environment           `json:"default_environment"`
	Environments       []store.Environment         `json:"environments"`
	ChangeThreshold    float64                     `json:"change_threshold"`
	TrendThreshold     float64                     `json:"trend_threshold"`
	Trends             []int                       `json:"trends"`
	DefaultTrend       int                         `json:"default_trend"`
	DefaultExecutable  store.Executable            `json:"default_executable"`
	Executables        []store.Executable          `json:"executables"`
	Baselines          []Baseline                  `json:"baselines"`
	DefaultBaseline    string                      `json:"default_baseline"`
	Revisions          []store.Revision            `json:"revisions"`
	SelectedRevision   *store.Revision             `json:"selected_revision,omitempty"`
	ProjectMatrix      map[uint]string             `json:"project_matrix"`
	RevisionBoxes      map[string][]store.Revision `json:"revision_boxes"`
}

// Overview resolves the defaults and selections of the overview page.
func (e *Engine) Overview(ctx context.Context, req OverviewRequest) (*Overview, error) {
	env, err := e.ResolveEnvironment(ctx, req.Host)
	if err != nil {
		return nil, err
	}

	exe, err := e.DefaultExecutable(ctx)
	if err != nil {
		return nil, err
	}

	if req.Executable != 0 {
		selected, err := e.store.GetExecutable(ctx, req.Executable)
		if err == nil {
			exe = selected
		} else if !isNotFound(err) {
			return nil, err
		}
	}

	view := &Overview{
		DefaultEnvironment: *env,
		ChangeThreshold:    DefaultChangeThreshold,
		TrendThreshold:     DefaultTrendThreshold,
		Trends:             TrendOptions,
		DefaultTrend:       DefaultTrend,
		DefaultExecutable:  *exe,
	}

	if slices.Contains(TrendOptions, req.Trend) {
		view.DefaultTrend = req.Trend
	}

	if view.Baselines, err = e.Baselines(ctx); err != nil {
		return nil, err
	}

	if len(view.Baselines) > 0 {
		view.DefaultBaseline = view.Baselines[0].Key()
	}

	if req.Baseline != "" && req.Baseline != "undefined" {
		view.DefaultBaseline = req.Baseline
	}

	if view.Environments, err = e.store.ListEnvironments(ctx); err != nil {
		return nil, err
	}

	if view.Executables, err = e.store.ListExecutables(
		ctx, store.ExecutableFilter{TrackedOnly: true},
	); err != nil {
		return nil, err
	}

	revs, err := e.store.ListRevisions(ctx, store.RevisionFilter{
		ProjectID: exe.ProjectID,
		Limit:     overviewRevisionLimit,
	})
	if err != nil {
		return nil, err
	}

	projectName := ""
	if exe.Project != nil {
		projectName = exe.Project.Name
	}

	if len(revs) == 0 {
		view.Error = fmt.Sprintf("No data found for project %q", projectName)

		return view, nil
	}

	selected := &revs[0]

	if req.Revision != "" {
		rev, err := e.store.GetRevisionByCommit(ctx, exe.ProjectID, req.Revision)
		switch {
		case err == nil:
			selected = rev

			if !slices.ContainsFunc(revs, func(r store.Revision) bool { return r.ID == rev.ID }) {
				revs = append(revs, *rev)
			}
		case !isNotFound(err):
			return nil, err
		}
	}

	view.Revisions = revs
	view.SelectedRevision = selected

	view.ProjectMatrix = make(map[uint]string, len(view.Executables))
	for _, x := range view.Executables {
		if x.Project != nil {
			view.ProjectMatrix[x.ID] = x.Project.Name
		}
	}

	view.RevisionBoxes = map[string][]store.Revision{projectName: revs}

	tracked, err := e.store.ListProjects(ctx, store.ProjectFilter{TrackedOnly: true})
	if err != nil {
		return nil, err
	}

	for _, proj := range tracked {
		if proj.ID == exe.ProjectID {
			continue
		}

		box, err := e.store.ListRevisions(ctx, store.RevisionFilter{
			ProjectID: proj.ID,
			Limit:     overviewRevisionLimit,
		})
		if err != nil {
			return nil, err
		}

		view.RevisionBoxes[proj.Name] = box
	}

	return view, nil
}

// TimelineViewRequest carries the optional timeline page selections.
type TimelineViewRequest struct {
	Host        string
	Baseline    *bool
	Benchmark   string
	Executables []uint
	Revisions   int
}

// TimelineView is the timeline page view model.
type TimelineView struct {
	DefaultEnvironment store.Environment   `json:"default_environment"`
	Environments       []store.Environment `json:"environments"`
	DefaultProject     store.Project       `json:"default_project"`
	Baseline           *Baseline           `json:"baseline"`
	DefaultBaseline    bool                `json:"default_baseline"`
	DefaultBenchmark   string              `json:"default_benchmark"`
	Benchmarks         []store.Benchmark   `json:"benchmarks"`
	CheckedExecutables []store.Executable  `json:"checked_executables"`
	Executables        []store.Executable  `json:"executables"`
	RevisionOptions    []int               `json:"revision_options"`
	DefaultRevisions   int                 `json:"default_revisions"`
}

// TimelineView resolves the defaults and selections of the timeline page.
// A named benchmark must exist.
func (e *Engine) TimelineView(ctx context.Context, req TimelineViewRequest) (*TimelineView, error) {
	env, err := e.ResolveEnvironment(ctx, req.Host)
	if err != nil {
		return nil, err
	}

	tracked, err := e.store.ListProjects(ctx, store.ProjectFilter{TrackedOnly: true})
	if err != nil {
		return nil, err
	}

	if len(tracked) == 0 {
		return nil, ErrNoProjects
	}

	view := &TimelineView{
		DefaultEnvironment: *env,
		DefaultProject:     tracked[0],
		DefaultBaseline:    req.Baseline == nil || *req.Baseline,
		DefaultBenchmark:   GridBenchmark,
		RevisionOptions:    slices.Clone(RevisionOptions),
		DefaultRevisions:   DefaultTimelineRevision,
	}

	baselines, err := e.Baselines(ctx)
	if err != nil {
		return nil, err
	}

	if len(baselines) > 0 {
		view.Baseline = &baselines[0]
	} else {
		view.DefaultBaseline = false
	}

	if req.Benchmark != "" && req.Benchmark != GridBenchmark {
		bench, err := e.store.GetBenchmarkByName(ctx, req.Benchmark)
		if err != nil {
			return nil, err
		}

		view.DefaultBenchmark = bench.Name
	}

	if view.Executables, err = e.store.ListExecutables(
		ctx, store.ExecutableFilter{TrackedOnly: true},
	); err != nil {
		return nil, err
	}

	for _, id := range dedupe(req.Executables) {
		exe, err := e.store.GetExecutable(ctx, id)
		if isNotFound(err) {
			continue
		} else if err != nil {
			return nil, err
		}

		view.CheckedExecutables = append(view.CheckedExecutables, *exe)
	}

	if len(view.CheckedExecutables) == 0 {
		view.CheckedExecutables = view.Executables
	}

	if req.Revisions > 0 {
		if !slices.Contains(view.RevisionOptions, req.Revisions) {
			view.RevisionOptions = append(view.RevisionOptions, req.Revisions)
		}

		view.DefaultRevisions = req.Revisions
	}

	if view.Benchmarks, err = e.store.ListBenchmarks(ctx); err != nil {
		return nil, err
	}

	if view.Environments, err = e.store.ListEnvironments(ctx); err != nil {
		return nil, err
	}

	return view, nil
}
