package analytics

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/ethpandaops/speedcenter/pkg/store"
)

// Chart types offered by the comparison view.
const (
	ChartBars        = "bars"
	ChartStackedBars = "stacked bars"
)

// ChartTypes lists the selectable chart types, default first.
var ChartTypes = []string{ChartBars, ChartStackedBars}

// ParseChartType returns chart when it is a known chart type, else the
// default.
func ParseChartType(chart string) string {
	if slices.Contains(ChartTypes, chart) {
		return chart
	}

	return ChartTypes[0]
}

// latestKeySuffix marks a comparison key that follows a tracked project's
// newest revision.
const latestKeySuffix = "+L"

// ComparisonOption is a selectable executable at a revision.
type ComparisonOption struct {
	Key        string           `json:"key"`
	Executable store.Executable `json:"executable"`
	Revision   store.Revision   `json:"revision"`
	Name       string           `json:"name"`
}

// ComparisonOptions builds the candidate set: every tagged revision
// crossed with the executables of its project, followed by the latest
// revision of each tracked project unless that revision is tagged.
func (e *Engine) ComparisonOptions(ctx context.Context) ([]ComparisonOption, error) {
	tagged, err := e.store.ListRevisions(ctx, store.RevisionFilter{TaggedOnly: true})
	if err != nil {
		return nil, err
	}

	exes := newExecutableCache(e.store)
	taggedIDs := make(map[uint]struct{}, len(tagged))

	var options []ComparisonOption

	for _, rev := range tagged {
		taggedIDs[rev.ID] = struct{}{}

		projectExes, err := exes.forProject(ctx, rev.ProjectID)
		if err != nil {
			return nil, err
		}

		for _, exe := range projectExes {
			options = append(options, ComparisonOption{
				Key: BaselineRef{
					ExecutableID: exe.ID,
					RevisionID:   rev.ID,
				}.String(),
				Executable: exe,
				Revision:   rev,
				Name:       exe.String() + " " + rev.Tag,
			})
		}
	}

	tracked, err := e.store.ListProjects(ctx, store.ProjectFilter{TrackedOnly: true})
	if err != nil {
		return nil, err
	}

	for _, proj := range tracked {
		latest, err := e.store.LatestRevision(ctx, proj.ID)
		if isNotFound(err) {
			continue
		} else if err != nil {
			return nil, err
		}

		if _, ok := taggedIDs[latest.ID]; ok {
			continue
		}

		projectExes, err := exes.forProject(ctx, proj.ID)
		if err != nil {
			return nil, err
		}

		for _, exe := range projectExes {
			options = append(options, ComparisonOption{
				Key:        strconv.FormatUint(uint64(exe.ID), 10) + latestKeySuffix,
				Executable: exe,
				Revision:   *latest,
				Name:       exe.String() + " latest",
			})
		}
	}

	return options, nil
}

// CompareRequest carries the raw comparison selection. Executables,
// Benchmarks and Environments are comma separated lists of keys or ids.
type CompareRequest struct {
	Executables  string
	Benchmarks   string
	Environments string
	Chart        string
	Host         string
}

// Comparison is the comparison view model.
type Comparison struct {
	Executables         []ComparisonOption  `json:"executables"`
	Benchmarks          []store.Benchmark   `json:"benchmarks"`
	Environments        []store.Environment `json:"environments"`
	CheckedExecutables  []string            `json:"checked_executables"`
	CheckedBenchmarks   []store.Benchmark   `json:"checked_benchmarks"`
	CheckedEnvironments []store.Environment `json:"checked_environments"`
	DefaultEnvironment  store.Environment   `json:"default_environment"`
	Charts              []string            `json:"charts"`
	SelectedChart       string              `json:"selected_chart"`
}

// Compare resolves a comparison selection. Each dimension keeps only the
// known keys or ids it was given and selects everything when none remain.
func (e *Engine) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	env, err := e.ResolveEnvironment(ctx, req.Host)
	if err != nil {
		return nil, err
	}

	projects, err := e.store.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return nil, err
	}

	if len(projects) == 0 {
		return nil, ErrNoProjects
	}

	options, err := e.ComparisonOptions(ctx)
	if err != nil {
		return nil, err
	}

	benches, err := e.store.ListBenchmarks(ctx)
	if err != nil {
		return nil, err
	}

	envs, err := e.store.ListEnvironments(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(options))
	for _, opt := range options {
		keys = append(keys, opt.Key)
	}

	cmp := &Comparison{
		Executables:  options,
		Benchmarks:   benches,
		Environments: envs,
		CheckedExecutables: selectByKey(req.Executables, keys, func(k string) string {
			return k
		}),
		CheckedBenchmarks: selectByKey(req.Benchmarks, benches, func(b store.Benchmark) string {
			return strconv.FormatUint(uint64(b.ID), 10)
		}),
		CheckedEnvironments: selectByKey(req.Environments, envs, func(e store.Environment) string {
			return strconv.FormatUint(uint64(e.ID), 10)
		}),
		DefaultEnvironment: *env,
		Charts:             ChartTypes,
		SelectedChart:      ParseChartType(req.Chart),
	}

	return cmp, nil
}

// selectByKey returns the items of all named in the comma separated
// selection, in selection order and without repeats. An empty result
// selects all.
func selectByKey[T any](selection string, all []T, key func(T) string) []T {
	byKey := make(map[string]T, len(all))
	for _, item := range all {
		byKey[key(item)] = item
	}

	var (
		out  []T
		seen = make(map[string]struct{})
	)

	for _, k := range strings.Split(selection, ",") {
		k = strings.TrimSpace(k)

		item, ok := byKey[k]
		if !ok {
			continue
		}

		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, item)
	}

	if len(out) == 0 {
		return all
	}

	return out
}
