// Package cleanup enforces data retention for staging and bookkeeping tables.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/store"
)

// Service periodically enforces retention policies:
//   - Purges normalized staging rows past the raw retention window
//   - Removes finished ingestion runs past the run retention window
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	raw    *store.RawStore
	runs   *store.RunStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, raw *store.RawStore, runs *store.RunStore) *Service {
	return &Service{
		config: cfg,
		raw:    raw,
		runs:   runs,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"raw_retention", s.config.RawRetention,
		"run_retention", s.config.RunRetention,
		"interval", s.config.Interval)
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

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.purgeNormalizedRaw(ctx)
	s.purgeOldRuns(ctx)
}

func (s *Service) purgeNormalizedRaw(_ context.Context) {
	if s.config.RawRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.config.RawRetention)
	count, err := s.raw.DeleteNormalizedBefore(context.Background(), cutoff)
	if err != nil {
		slog.Error("Retention: raw item purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: purged normalized raw items", "count", count)
	}
}

func (s *Service) purgeOldRuns(_ context.Context) {
	if s.config.RunRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.config.RunRetention)
	count, err := s.runs.DeleteFinishedBefore(context.Background(), cutoff)
	if err != nil {
		slog.Error("Retention: run purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: purged finished ingestion runs", "count", count)
	}
}
