package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner performs one export pass.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// Scheduler runs exports in the background at a fixed interval.
type Scheduler struct {
	log      logrus.FieldLogger
	runner   Runner
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler. interval must be positive.
func NewScheduler(log logrus.FieldLogger, runner Runner, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("export interval must be positive, got %s", interval)
	}

	return &Scheduler{
		log:      log.WithField("component", "export-scheduler"),
		runner:   runner,
		interval: interval,
		done:     make(chan struct{}),
	}, nil
}

// Start runs one pass immediately in the background and then one per
// interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.WithField("interval", s.interval.String()).Info("Starting export scheduler")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.runPass(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runPass(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the scheduler goroutine to stop and waits for it.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()

	s.log.Info("Export scheduler stopped")
}

func (s *Scheduler) runPass(ctx context.Context) {
	start := time.Now()

	n, err := s.runner.Run(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Export pass failed")

		return
	}

	s.log.WithFields(logrus.Fields{
		"objects":  n,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Export pass completed")
}
