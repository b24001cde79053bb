// Package commitlog fetches commit history from a project's source
// repository for display next to benchmark results.
package commitlog

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/sirupsen/logrus"
)

// MaxEntries bounds the number of log entries returned for one revision.
const MaxEntries = 200

// Entry is a single commit.
type Entry struct {
	Date     time.Time `json:"date"`
	Author   string    `json:"author"`
	Message  string    `json:"message"`
	CommitID string    `json:"commitid"`
}

// Provider fetches commit logs of a project's repository.
type Provider interface {
	// Logs returns the commits after from up to and including to, newest
	// first. When from equals to only that commit is returned. Projects
	// without a configured repository yield no entries.
	Logs(ctx context.Context, project *store.Project, from, to string) ([]Entry, error)
}

// Enabled reports whether logs can be fetched for project.
func Enabled(project *store.Project) bool {
	return project != nil &&
		project.RepoType != "" &&
		project.RepoType != store.RepoTypeNone &&
		project.RepoPath != ""
}

// NewProvider returns a Provider dispatching on the project's repository
// type.
func NewProvider(log logrus.FieldLogger, cfg *config.CommitLogsConfig) (Provider, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("parsing commit log timeout: %w", err)
	}

	return &provider{
		log:    log.WithField("component", "commitlog"),
		github: newGitHubProvider(cfg.GitHub, timeout),
	}, nil
}

type provider struct {
	log    logrus.FieldLogger
	github *githubProvider
}

func (p *provider) Logs(
	ctx context.Context, project *store.Project, from, to string,
) ([]Entry, error) {
	if !Enabled(project) {
		return nil, nil
	}

	switch project.RepoType {
	case store.RepoTypeGitHub:
		entries, err := p.github.Logs(ctx, project, from, to)
		if err != nil {
			return nil, err
		}

		p.log.WithField("project", project.Name).
			WithField("entries", len(entries)).
			Debug("Fetched commit logs")

		return entries, nil
	default:
		return nil, fmt.Errorf("unsupported repository type %q", project.RepoType)
	}
}

// Noop is a Provider that never returns logs.
type Noop struct{}

// Logs implements Provider.
func (Noop) Logs(context.Context, *store.Project, string, string) ([]Entry, error) {
	return nil, nil
}

// trim keeps the newest MaxEntries of entries ordered newest first.
func trim(entries []Entry) []Entry {
	if len(entries) > MaxEntries {
		return entries[:MaxEntries]
	}

	return entries
}
