package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/store"
)

const (
	// GridBenchmark selects every benchmark in a single timeline request.
	GridBenchmark = "grid"

	// GridRevisions is the revision count used in grid mode.
	GridRevisions = 15

	// pointDateFormat is how timeline dates are rendered.
	pointDateFormat = "2006-01-02 15:04:05"
)

// Timeline set status messages.
const (
	TimelineOK            = "None"
	TimelineNoExecutables = "No executables selected"
	TimelineNoData        = "No data found for the selected options"
)

// TimelineRequest selects the timelines to build.
type TimelineRequest struct {
	// Benchmark is a benchmark name or GridBenchmark.
	Benchmark   string
	Executables []uint
	Environment *store.Environment
	Revisions   int
	Baseline    bool
}

// Point is one timeline sample. It encodes as
// [date, value, std_dev or "", commit id].
type Point struct {
	Date     time.Time
	Value    float64
	StdDev   *float64
	CommitID string
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	var stddev any = ""
	if p.StdDev != nil {
		stddev = *p.StdDev
	}

	return json.Marshal([]any{
		p.Date.Format(pointDateFormat), p.Value, stddev, p.CommitID,
	})
}

// BaselinePoint is one end of the flat baseline line.
type BaselinePoint struct {
	Date  time.Time
	Value float64
}

// MarshalJSON implements json.Marshaler.
func (p BaselinePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Date.Format(pointDateFormat), p.Value})
}

// BaselineLine is the baseline overlay of a timeline. An unavailable line
// encodes as "None".
type BaselineLine struct {
	Available bool
	Points    [2]BaselinePoint
}

// MarshalJSON implements json.Marshaler.
func (b BaselineLine) MarshalJSON() ([]byte, error) {
	if !b.Available {
		return json.Marshal(TimelineOK)
	}

	return json.Marshal(b.Points)
}

// Timeline holds one benchmark's series, keyed by executable id.
type Timeline struct {
	Benchmark    string             `json:"benchmark"`
	Units        string             `json:"units"`
	LessIsBetter string             `json:"lessisbetter"`
	Executables  map[string][]Point `json:"executables"`
	Baseline     *BaselineLine      `json:"baseline,omitempty"`
}

// TimelineSet is the outcome of a timeline request.
type TimelineSet struct {
	Error     string     `json:"error"`
	Timelines []Timeline `json:"timelines"`
}

// Timelines builds per-benchmark result series for the requested
// executables.
func (e *Engine) Timelines(ctx context.Context, req TimelineRequest) (*TimelineSet, error) {
	set := &TimelineSet{Error: TimelineOK, Timelines: []Timeline{}}

	executables := dedupe(req.Executables)
	if len(executables) == 0 {
		set.Error = TimelineNoExecutables

		return set, nil
	}

	if req.Environment == nil {
		return nil, fmt.Errorf("%w: environment is required", ErrInvalidRequest)
	}

	var (
		benches   []store.Benchmark
		revisions = req.Revisions
	)

	if req.Benchmark == GridBenchmark {
		all, err := e.store.ListBenchmarks(ctx)
		if err != nil {
			return nil, err
		}

		benches = all
		revisions = GridRevisions
	} else {
		bench, err := e.store.GetBenchmarkByName(ctx, req.Benchmark)
		if err != nil {
			return nil, err
		}

		benches = []store.Benchmark{*bench}
	}

	if revisions < 1 {
		return nil, fmt.Errorf(
			"%w: revision count must be positive, got %d", ErrInvalidRequest, revisions,
		)
	}

	var baseline *Baseline

	if req.Baseline {
		baselines, err := e.Baselines(ctx)
		if err != nil {
			return nil, err
		}

		if len(baselines) > 0 {
			baseline = &baselines[0]
		}
	}

	for _, bench := range benches {
		timeline := Timeline{
			Benchmark:    bench.Name,
			Units:        bench.Units,
			LessIsBetter: directionLabel(bench.LessIsBetter),
			Executables:  make(map[string][]Point, len(executables)),
		}

		var longest []Point

		for _, exeID := range executables {
			results, err := e.store.ListResults(ctx, store.ResultFilter{
				ExecutableID:  exeID,
				BenchmarkID:   bench.ID,
				EnvironmentID: req.Environment.ID,
				Limit:         revisions,
			})
			if err != nil {
				return nil, err
			}

			if len(results) == 0 {
				continue
			}

			series := make([]Point, 0, len(results))
			for _, res := range results {
				series = append(series, resultPoint(res))
			}

			timeline.Executables[strconv.FormatUint(uint64(exeID), 10)] = series

			if len(series) > len(longest) {
				longest = series
			}
		}

		if len(timeline.Executables) == 0 {
			continue
		}

		if baseline != nil {
			line, err := e.baselineLine(ctx, baseline, bench.ID, req.Environment.ID, longest)
			if err != nil {
				return nil, err
			}

			timeline.Baseline = line
		}

		set.Timelines = append(set.Timelines, timeline)
	}

	if len(set.Timelines) == 0 {
		set.Error = TimelineNoData
	}

	return set, nil
}

// baselineLine spans the baseline value over the date range of series,
// which is ordered newest first.
func (e *Engine) baselineLine(
	ctx context.Context,
	baseline *Baseline,
	benchmarkID, environmentID uint,
	series []Point,
) (*BaselineLine, error) {
	res, err := e.store.GetResult(
		ctx, baseline.Revision.ID, baseline.Executable.ID, benchmarkID, environmentID,
	)
	if isNotFound(err) {
		return &BaselineLine{}, nil
	} else if err != nil {
		return nil, err
	}

	return &BaselineLine{
		Available: true,
		Points: [2]BaselinePoint{
			{Date: series[len(series)-1].Date, Value: res.Value},
			{Date: series[0].Date, Value: res.Value},
		},
	}, nil
}

// directionLabel is appended to a benchmark's units on timeline axes.
func directionLabel(lessIsBetter bool) string {
	if lessIsBetter {
		return " (less is better)"
	}

	return " (more is better)"
}

func resultPoint(res store.Result) Point {
	p := Point{
		Date:   res.Date,
		Value:  res.Value,
		StdDev: res.StdDev,
	}

	if res.Revision != nil {
		p.Date = res.Revision.Date
		p.CommitID = res.Revision.CommitID
	}

	return p
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
