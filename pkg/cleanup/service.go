// Package cleanup provides data retention for review runs.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexroom/reviewd/pkg/config"
)

// RunDeleter deletes terminal runs created before a cutoff.
// *store.Store satisfies it.
type RunDeleter interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically deletes terminal runs older than the retention window;
// their chunks and findings go with them via ON DELETE CASCADE. Deletion is
// idempotent and safe to run from multiple replicas. A zero retention window
// disables the loop.
type Service struct {
	config config.RetentionConfig
	store  RunDeleter

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg config.RetentionConfig, store RunDeleter) *Service {
	return &Service{config: cfg, store: store}
}

// Start launches the background cleanup loop. No-op when retention is
// disabled or the service is already running.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	if s.config.RunRetentionDays <= 0 {
		slog.Info("Run retention disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"run_retention_days", s.config.RunRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.deleteExpiredRuns(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deleteExpiredRuns(ctx)
		}
	}
}

func (s *Service) deleteExpiredRuns(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.RunRetentionDays)
	count, err := s.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: run deletion failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired runs", "count", count, "cutoff", cutoff)
	}
}
