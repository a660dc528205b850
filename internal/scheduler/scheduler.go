package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/restockd/restockd/internal/bulk"
)

// SessionSweeper removes expired verified sessions.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Scheduler triggers bulk availability checks in the background. The
// interval is re-read from settings every cycle, so changing it takes effect
// without a restart. Overlap with a user-triggered run is prevented by the
// orchestrator's own run guard.
type Scheduler struct {
	orchestrator *bulk.Orchestrator
	settings     bulk.SettingsReader
	sweeper      SessionSweeper
	logger       *slog.Logger
}

func New(orchestrator *bulk.Orchestrator, settings bulk.SettingsReader, sweeper SessionSweeper) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		settings:     settings,
		sweeper:      sweeper,
		logger:       slog.Default().With("component", "scheduler"),
	}
}

// Start runs the background loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started")

	for {
		interval, enabled := s.currentInterval(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-time.After(interval):
		}

		if !enabled {
			continue
		}

		s.sweepSessions(ctx)

		summary, err := s.orchestrator.Run(ctx)
		switch {
		case errors.Is(err, bulk.ErrRunInProgress):
			s.logger.Info("skipping scheduled run, another run is in flight")
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			s.logger.Error("scheduled run failed", "error", err)
		default:
			s.logger.Info("scheduled run finished",
				"total", summary.Total,
				"successful", summary.Successful,
				"failed", summary.Failed)
		}
	}
}

func (s *Scheduler) currentInterval(ctx context.Context) (time.Duration, bool) {
	snapshot, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("failed to read settings, retrying in a minute", "error", err)
		return time.Minute, false
	}

	interval := snapshot.BackgroundInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return interval, snapshot.BackgroundEnabled
}

func (s *Scheduler) sweepSessions(ctx context.Context) {
	removed, err := s.sweeper.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed)
	}
}
