package commitlog

import (
	"context"

	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/sirupsen/logrus"
)

// RevisionStore is the subset of store.Store the Service reads from.
type RevisionStore interface {
	GetRevision(ctx context.Context, id uint) (*store.Revision, error)
	ListRevisions(ctx context.Context, filter store.RevisionFilter) ([]store.Revision, error)
}

// Service resolves commit logs for stored revisions.
type Service struct {
	log      logrus.FieldLogger
	store    RevisionStore
	provider Provider
}

// NewService creates a Service.
func NewService(log logrus.FieldLogger, st RevisionStore, p Provider) *Service {
	return &Service{
		log:      log.WithField("component", "commitlog"),
		store:    st,
		provider: p,
	}
}

// RevisionLogs returns the commits between the previous revision of the
// project and the given one. When the provider has nothing, the revision
// itself is returned as the only entry. Provider failures are logged and
// treated as no logs.
func (s *Service) RevisionLogs(ctx context.Context, revisionID uint) ([]Entry, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}

	fallback := []Entry{{
		Date:     rev.Date,
		Author:   rev.Author,
		Message:  rev.Message,
		CommitID: rev.CommitID,
	}}

	if !Enabled(rev.Project) {
		return fallback, nil
	}

	from := rev.CommitID

	prev, err := s.store.ListRevisions(ctx, store.RevisionFilter{
		ProjectID: rev.ProjectID,
		Before:    &rev.Date,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}

	if len(prev) > 0 {
		from = prev[0].CommitID
	}

	entries, err := s.provider.Logs(ctx, rev.Project, from, rev.CommitID)
	if err != nil {
		s.log.WithError(err).
			WithField("revision", rev.CommitID).
			Warn("Failed to fetch commit logs")

		return fallback, nil
	}

	if len(entries) == 0 {
		return fallback, nil
	}

	return entries, nil
}
