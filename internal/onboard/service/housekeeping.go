package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/ratelimit"
)

// expiredTokenRetention is how long expired tokens stay queryable before
// housekeeping reclaims them. Expiry itself never mutates a token; this
// delayed sweep is the only destructive path.
const expiredTokenRetention = 30 * 24 * time.Hour

// HousekeepingService periodically reclaims long-expired onboarding tokens
// and stale rate-limit windows so neither grows without bound.
type HousekeepingService struct {
	Store    store.Store
	Limiter  *ratelimit.Limiter
	Queue    *mail.Queue
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(
	st store.Store,
	limiter *ratelimit.Limiter,
	queue *mail.Queue,
	logger *slog.Logger,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Limiter:  limiter,
		Queue:    queue,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until in-progress cleanup finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs each task independently; one failure does not stop the rest.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	s.Logger.Info("starting housekeeping cleanup")

	cutoff := time.Now().Add(-expiredTokenRetention)
	if err := s.Store.Tokens().DeleteTokensExpiredBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete long-expired tokens", "error", err)
	} else {
		s.Logger.Debug("deleted long-expired tokens", "cutoff", cutoff)
	}

	swept := s.Limiter.Sweep()
	s.Logger.Debug("swept expired rate-limit windows", "removed", swept)

	qs := s.Queue.Status()
	s.Logger.Info("housekeeping cleanup completed",
		"queue_pending", qs.Pending,
		"queue_sending", qs.Sending,
	)
}
