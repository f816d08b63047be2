package service

import (
	"context"
	"log/slog"
	"time"
)

// RetentionSweeper periodically deletes refresh-token records that are
// expired, or revoked and past the retention window, so the table does not
// grow without bound. A failed pass is logged and left for the next tick;
// there is no inline retry.
type RetentionSweeper struct {
	Rotation *RotationService
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRetentionSweeper creates a sweeper with the given interval.
// Non-positive intervals default to 1 hour.
func NewRetentionSweeper(rotation *RotationService, logger *slog.Logger, interval time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &RetentionSweeper{
		Rotation: rotation,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *RetentionSweeper) Start() {
	go s.run()
	s.Logger.Info("retention sweeper started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress pass finishes.
func (s *RetentionSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("retention sweeper stopped")
}

func (s *RetentionSweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First pass immediately on startup.
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	n, err := s.Rotation.CleanupExpiredTokens(ctx)
	if err != nil {
		s.Logger.Error("retention sweep failed", "error", err)
		return
	}
	s.Logger.Debug("retention sweep completed", "deleted", n)
}
