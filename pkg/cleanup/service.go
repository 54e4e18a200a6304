// Package cleanup provides data retention for old assessments and stale
// tunnel sessions, per SPEC_FULL.md §9.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/vibecheck/vibecheck/pkg/config"
)

// Store is the persistence surface the cleanup loop needs, satisfied by
// *database.Client.
type Store interface {
	DeleteAssessmentsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	DeleteDisconnectedTunnelSessionsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Service periodically enforces retention policies:
//   - removes terminal assessments (and their cascaded findings/agent_logs)
//     older than the configured retention window
//   - removes disconnected tunnel sessions past their TTL
//
// All operations are idempotent and safe to run from multiple instances.
type Service struct {
	config *config.RetentionConfig
	store  Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store Store) *Service {
	return &Service{config: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"assessment_retention", s.config.AssessmentRetention,
		"tunnel_session_ttl", s.config.TunnelSessionTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
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
	s.deleteOldAssessments(ctx)
	s.deleteStaleTunnelSessions(ctx)
}

func (s *Service) deleteOldAssessments(_ context.Context) {
	cutoff := time.Now().Add(-s.config.AssessmentRetention)
	count, err := s.store.DeleteAssessmentsOlderThan(context.Background(), cutoff)
	if err != nil {
		slog.Error("retention: delete old assessments failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: deleted old assessments", "count", count)
	}
}

func (s *Service) deleteStaleTunnelSessions(_ context.Context) {
	cutoff := time.Now().Add(-s.config.TunnelSessionTTL)
	count, err := s.store.DeleteDisconnectedTunnelSessionsOlderThan(context.Background(), cutoff)
	if err != nil {
		slog.Error("retention: delete stale tunnel sessions failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: deleted stale tunnel sessions", "count", count)
	}
}
