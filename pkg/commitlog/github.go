package commitlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
)

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
		Message string `json:"message"`
	} `json:"commit"`
}

type githubCompare struct {
	Commits []githubCommit `json:"commits"`
}

type githubProvider struct {
	cfg    config.GitHubConfig
	client *http.Client
}

func newGitHubProvider(cfg config.GitHubConfig, timeout time.Duration) *githubProvider {
	return &githubProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Logs uses the compare endpoint for a range and the commit endpoint for a
// single revision.
func (g *githubProvider) Logs(
	ctx context.Context, project *store.Project, from, to string,
) ([]Entry, error) {
	repo := strings.Trim(project.RepoPath, "/")

	if from == "" || from == to {
		var commit githubCommit
		if err := g.get(ctx, project, "/repos/"+repo+"/commits/"+url.PathEscape(to), &commit); err != nil {
			return nil, err
		}

		return []Entry{commit.entry()}, nil
	}

	var cmp githubCompare

	path := "/repos/" + repo + "/compare/" + url.PathEscape(from) + "..." + url.PathEscape(to)
	if err := g.get(ctx, project, path, &cmp); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(cmp.Commits))
	for _, c := range cmp.Commits {
		entries = append(entries, c.entry())
	}

	// The compare API lists commits oldest first.
	slices.Reverse(entries)

	return trim(entries), nil
}

func (g *githubProvider) get(
	ctx context.Context, project *store.Project, path string, out any,
) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, strings.TrimRight(g.cfg.APIURL, "/")+path, nil,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	if token := g.token(project); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf(
			"github api returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// token prefers the project's own credentials over the global token.
func (g *githubProvider) token(project *store.Project) string {
	if project.RepoPass != "" {
		return project.RepoPass
	}

	return g.cfg.Token
}

func (c githubCommit) entry() Entry {
	return Entry{
		Date:     c.Commit.Author.Date,
		Author:   c.Commit.Author.Name,
		Message:  c.Commit.Message,
		CommitID: c.SHA,
	}
}
