package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vibecheck/vibecheck/pkg/config"
)

type fakeStore struct {
	mu               sync.Mutex
	assessmentCutoff time.Time
	tunnelCutoff     time.Time
	assessmentCalls  int
	tunnelCalls      int
}

func (s *fakeStore) DeleteAssessmentsOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessmentCutoff = cutoff
	s.assessmentCalls++
	return 2, nil
}

func (s *fakeStore) DeleteDisconnectedTunnelSessionsOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tunnelCutoff = cutoff
	s.tunnelCalls++
	return 1, nil
}

func TestService_RunAllDeletesUsingConfiguredCutoffs(t *testing.T) {
	store := &fakeStore{}
	cfg := &config.RetentionConfig{
		AssessmentRetention: 30 * 24 * time.Hour,
		TunnelSessionTTL:    24 * time.Hour,
		CleanupInterval:     time.Hour,
	}
	svc := NewService(cfg, store)

	before := time.Now()
	svc.runAll(context.Background())
	after := time.Now()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.assessmentCalls)
	assert.Equal(t, 1, store.tunnelCalls)

	wantAssessmentCutoff := before.Add(-cfg.AssessmentRetention)
	assert.WithinDuration(t, wantAssessmentCutoff, store.assessmentCutoff, after.Sub(before)+time.Second)

	wantTunnelCutoff := before.Add(-cfg.TunnelSessionTTL)
	assert.WithinDuration(t, wantTunnelCutoff, store.tunnelCutoff, after.Sub(before)+time.Second)
}

func TestService_StartAndStopRunsLoopOnce(t *testing.T) {
	store := &fakeStore{}
	cfg := &config.RetentionConfig{
		AssessmentRetention: time.Hour,
		TunnelSessionTTL:    time.Hour,
		CleanupInterval:     time.Minute,
	}
	svc := NewService(cfg, store)

	svc.Start(context.Background())
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.assessmentCalls >= 1 && store.tunnelCalls >= 1
	}, time.Second, 10*time.Millisecond)

	svc.Stop()
}
