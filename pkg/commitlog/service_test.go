package commitlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/speedcenter/pkg/commitlog"
	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/store"
)

type call struct {
	from, to string
}

type fakeProvider struct {
	calls   []call
	entries []commitlog.Entry
	err     error
}

func (f *fakeProvider) Logs(
	_ context.Context, _ *store.Project, from, to string,
) ([]commitlog.Entry, error) {
	f.calls = append(f.calls, call{from: from, to: to})

	return f.entries, f.err
}

func setup(t *testing.T, repoType string) (store.Store, *store.Revision, *store.Revision) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	ctx := context.Background()

	p, err := s.GetOrCreateProject(ctx, "speedcenter")
	require.NoError(t, err)

	p.RepoType = repoType
	p.RepoPath = "ethpandaops/speedcenter"
	require.NoError(t, s.SaveProject(ctx, p))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var revs []*store.Revision

	for i, commit := range []string{"aaa", "bbb"} {
		rev, _, err := s.GetOrCreateRevision(ctx, p.ID, commit)
		require.NoError(t, err)

		rev.Date = base.Add(time.Duration(i) * time.Hour)
		rev.Author = "dev"
		rev.Message = "message " + commit
		require.NoError(t, s.SaveRevision(ctx, rev))

		revs = append(revs, rev)
	}

	return s, revs[0], revs[1]
}

func TestService_RangeFromPreviousRevision(t *testing.T) {
	s, first, second := setup(t, store.RepoTypeGitHub)

	provider := &fakeProvider{entries: []commitlog.Entry{{CommitID: "bbb"}, {CommitID: "ab1"}}}
	svc := commitlog.NewService(logrus.New(), s, provider)

	entries, err := svc.RevisionLogs(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, []call{{from: "aaa", to: "bbb"}}, provider.calls)

	// The oldest revision compares against itself.
	_, err = svc.RevisionLogs(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, call{from: "aaa", to: "aaa"}, provider.calls[1])
}

func TestService_FallsBackToRevision(t *testing.T) {
	tests := []struct {
		name     string
		repoType string
		provider *fakeProvider
	}{
		{name: "no repository", repoType: store.RepoTypeNone, provider: &fakeProvider{}},
		{name: "no entries", repoType: store.RepoTypeGitHub, provider: &fakeProvider{}},
		{
			name:     "provider error",
			repoType: store.RepoTypeGitHub,
			provider: &fakeProvider{err: errors.New("rate limited")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, second := setup(t, tt.repoType)

			entries, err := commitlog.NewService(logrus.New(), s, tt.provider).
				RevisionLogs(context.Background(), second.ID)
			require.NoError(t, err)
			require.Len(t, entries, 1)

			assert.Equal(t, "bbb", entries[0].CommitID)
			assert.Equal(t, "message bbb", entries[0].Message)
			assert.Equal(t, "dev", entries[0].Author)
		})
	}
}

func TestService_UnknownRevision(t *testing.T) {
	s, _, _ := setup(t, store.RepoTypeGitHub)

	_, err := commitlog.NewService(logrus.New(), s, commitlog.Noop{}).
		RevisionLogs(context.Background(), 404)
	require.ErrorIs(t, err, store.ErrNotFound)
}
