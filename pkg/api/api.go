package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/analytics"
	"github.com/ethpandaops/speedcenter/pkg/commitlog"
	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/ethpandaops/speedcenter/pkg/ingest"
	"github.com/ethpandaops/speedcenter/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	engine     *analytics.Engine
	ingester   *ingest.Ingester
	logs       *commitlog.Service
	users      map[string][]byte
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server on a started store. The store's
// lifecycle stays with the caller.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
	provider commitlog.Provider,
) Server {
	return newServer(log, cfg, st, provider)
}

func newServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
	provider commitlog.Provider,
) *server {
	return &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		store:    st,
		engine:   analytics.New(log, st, cfg.Analytics),
		ingester: ingest.New(log, st, provider),
		logs:     commitlog.NewService(log, st, provider),
		users:    make(map[string][]byte, len(cfg.Auth.Basic.Users)),
		done:     make(chan struct{}),
	}
}

// Start hashes the configured users and starts the HTTP server.
func (s *server) Start(_ context.Context) error {
	if s.cfg.Auth.Basic.Enabled {
		if err := s.seedUsers(s.cfg.Auth.Basic.Users); err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
	}

	// Bind the listener synchronously so we fail fast on port conflicts,
	// before the router starts its background cleanup.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server. Further calls are no-ops.
func (s *server) Stop() error {
	s.stopOnce.Do(s.stop)

	return nil
}

func (s *server) stop() {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("API server stopped")
}

// seedUsers stores bcrypt hashes of the configured passwords.
func (s *server) seedUsers(users []config.BasicAuthUser) error {
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(u.Password), bcrypt.DefaultCost,
		)
		if err != nil {
			return fmt.Errorf("hashing password for %q: %w", u.Username, err)
		}

		s.users[u.Username] = hash
	}

	s.log.WithField("users", len(users)).Info("Basic auth enabled for ingestion")

	return nil
}

// checkPassword compares the stored bcrypt hash of username with password.
func (s *server) checkPassword(username, password string) bool {
	hash, ok := s.users[username]
	if !ok {
		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
