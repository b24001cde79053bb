package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/ingest"
	"github.com/ethpandaops/speedcenter/pkg/store"
)

const maxSubmissionBytes = 10 << 20

// errBadParam marks malformed query or form parameters.
var errBadParam = errors.New("bad parameter")

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// addResultResponse acknowledges stored submissions.
type addResultResponse struct {
	Status string `json:"status"`
	Saved  int    `json:"saved"`
}

// logsResponse carries the commit log of a revision.
type logsResponse struct {
	Logs any `json:"logs"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps err onto a status code and writes it.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var keyErr *ingest.KeyError

	switch {
	case errors.As(err, &keyErr),
		errors.Is(err, errBadParam),
		errors.Is(err, analytics.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})
	case errors.Is(err, analytics.ErrNoEnvironments),
		errors.Is(err, analytics.ErrNoProjects):
		writeJSON(w, http.StatusConflict, errorResponse{err.Error()})
	default:
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal server error"})
	}
}

// parseUint parses an id parameter. Empty values yield 0.
func parseUint(name, value string) (uint, error) {
	if value == "" {
		return 0, nil
	}

	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an id, got %q", errBadParam, name, value)
	}

	return uint(n), nil
}

// parseInt parses a count parameter. Empty values yield def.
func parseInt(name, value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", errBadParam, name, value)
	}

	return n, nil
}

// parseUintList parses a comma separated id list, skipping empty items.
func parseUintList(name, value string) ([]uint, error) {
	var ids []uint

	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		id, err := parseUint(name, item)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// parseOptionalBool parses "true" or "false"; anything else is unset.
func parseOptionalBool(value string) *bool {
	var b bool

	switch value {
	case "true":
		b = true
	case "false":
		b = false
	default:
		return nil
	}

	return &b
}

// baselineParam returns the "base" parameter, or "baseline" as sent by
// older table clients.
func baselineParam(q url.Values) string {
	if base := q.Get("base"); base != "" {
		return base
	}

	return q.Get("baseline")
}

// environment returns the environment named host, or the default
// environment when host is empty.
func (s *server) environment(ctx context.Context, host string) (*store.Environment, error) {
	if host == "" {
		return s.engine.DefaultEnvironment(ctx)
	}

	return s.store.GetEnvironmentByName(ctx, host)
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOverview returns the overview view defaults.
func (s *server) handleOverview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	trend, err := parseInt("tre", q.Get("tre"), 0)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	exe, err := parseUint("exe", q.Get("exe"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	view, err := s.engine.Overview(r.Context(), analytics.OverviewRequest{
		Host:       q.Get("host"),
		Trend:      trend,
		Executable: exe,
		Baseline:   q.Get("base"),
		Revision:   q.Get("rev"),
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleOverviewTable returns the change/trend table of one executable.
func (s *server) handleOverviewTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	exeID, err := parseUint("exe", q.Get("exe"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if exeID == 0 {
		s.writeError(w, r, fmt.Errorf("%w: exe is required", errBadParam))

		return
	}

	trend, err := parseInt("tre", q.Get("tre"), analytics.DefaultTrend)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	baseline, err := analytics.ParseBaselineRef(baselineParam(q))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	exe, err := s.store.GetExecutable(ctx, exeID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	env, err := s.environment(ctx, q.Get("host"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var rev *store.Revision

	if commit := q.Get("rev"); commit != "" {
		rev, err = s.store.GetRevisionByCommit(ctx, exe.ProjectID, commit)
	} else {
		rev, err = s.store.LatestRevision(ctx, exe.ProjectID)
	}

	if err != nil {
		s.writeError(w, r, err)

		return
	}

	table, err := s.engine.Table(ctx, analytics.TableRequest{
		Executable:  exe,
		Environment: env,
		Revision:    rev,
		TrendWindow: trend,
		Baseline:    baseline,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, table)
}

// handleTimeline returns the timeline view defaults.
func (s *server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	exes, err := parseUintList("exe", q.Get("exe"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	revs, err := parseInt("revs", q.Get("revs"), 0)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	view, err := s.engine.TimelineView(r.Context(), analytics.TimelineViewRequest{
		Host:        q.Get("host"),
		Baseline:    parseOptionalBool(q.Get("base")),
		Benchmark:   q.Get("ben"),
		Executables: exes,
		Revisions:   revs,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleTimelineData returns the timeline series of the selection.
func (s *server) handleTimelineData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	exes, err := parseUintList("exe", q.Get("exe"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	revs, err := parseInt("revs", q.Get("revs"), analytics.DefaultTimelineRevision)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	env, err := s.environment(ctx, q.Get("host"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	bench := q.Get("ben")
	if bench == "" {
		bench = analytics.GridBenchmark
	}

	set, err := s.engine.Timelines(ctx, analytics.TimelineRequest{
		Benchmark:   bench,
		Executables: exes,
		Environment: env,
		Revisions:   revs,
		Baseline:    q.Get("base") == "true",
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, set)
}

// handleComparison returns the comparison matrix selection.
func (s *server) handleComparison(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cmp, err := s.engine.Compare(r.Context(), analytics.CompareRequest{
		Executables:  q.Get("exe"),
		Benchmarks:   q.Get("ben"),
		Environments: q.Get("env"),
		Chart:        q.Get("chart"),
		Host:         q.Get("host"),
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, cmp)
}

// handleBaselines returns the resolved baseline list.
func (s *server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	baselines, err := s.engine.Baselines(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if baselines == nil {
		baselines = []analytics.Baseline{}
	}

	writeJSON(w, http.StatusOK, baselines)
}

// handleLogs returns the commit log leading to a revision.
func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := parseUint("revisionid", r.URL.Query().Get("revisionid"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if id == 0 {
		s.writeError(w, r, fmt.Errorf("%w: revisionid is required", errBadParam))

		return
	}

	entries, err := s.logs.RevisionLogs(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, logsResponse{Logs: entries})
}

// handleAddResult stores submissions posted as a form, a JSON object or
// a JSON array of objects.
func (s *server) handleAddResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)

	raws, err := readSubmissions(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	subs := make([]*ingest.Submission, 0, len(raws))

	for _, raw := range raws {
		sub, err := ingest.Decode(raw)
		if err != nil {
			var keyErr *ingest.KeyError
			if !errors.As(err, &keyErr) {
				err = fmt.Errorf("%w: %w", errBadParam, err)
			}

			s.writeError(w, r, err)

			return
		}

		subs = append(subs, sub)
	}

	saved := 1

	if len(subs) == 1 {
		_, err = s.ingester.Add(r.Context(), subs[0])
	} else {
		saved, err = s.ingester.AddAll(r.Context(), subs)
	}

	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusAccepted, addResultResponse{
		Status: "Result data saved successfully",
		Saved:  saved,
	})
}

// readSubmissions returns the raw submissions of the request body.
func readSubmissions(r *http.Request) ([]map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: parsing form: %w", errBadParam, err)
		}

		return []map[string]any{ingest.FromValues(r.PostForm)}, nil
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %w", errBadParam, err)
	}

	var many []map[string]any
	if err := json.Unmarshal(body, &many); err == nil {
		if len(many) == 0 {
			return nil, fmt.Errorf("%w: no submissions", errBadParam)
		}

		return many, nil
	}

	var one map[string]any
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, fmt.Errorf("%w: expected an object or an array of objects", errBadParam)
	}

	return []map[string]any{one}, nil
}
