package assessment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

type fakeStore struct {
	mu          sync.Mutex
	assessments map[string]*models.Assessment
	tunnels     map[string]*models.TunnelSession
	resetCalls  []string
	deleted     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assessments: map[string]*models.Assessment{},
		tunnels:     map[string]*models.TunnelSession{},
	}
}

func (s *fakeStore) CreateAssessment(_ context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assessments[a.ID] = &cp
	return nil
}

func (s *fakeStore) FindAssessmentByIdempotencyKey(_ context.Context, key string) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assessments {
		if a.IdempotencyKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, vcerrors.NotFound("assessment", id)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ListAssessments(_ context.Context, _ models.AssessmentFilters) ([]*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Assessment, 0, len(s.assessments))
	for _, a := range s.assessments {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) DeleteAssessment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assessments, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) ResetForRerun(_ context.Context, id string, agentNames []string, depth models.Depth, idempotencyKey *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return vcerrors.NotFound("assessment", id)
	}
	a.Status = models.StatusQueued
	a.Agents = agentNames
	a.Depth = depth
	if idempotencyKey != nil {
		a.IdempotencyKey = *idempotencyKey
	}
	a.SeverityCounts = models.SeverityCounts{}
	a.ErrorType = ""
	a.ErrorMessage = ""
	a.CompletedAt = nil
	s.resetCalls = append(s.resetCalls, id)
	return nil
}

func (s *fakeStore) FailAssessment(_ context.Context, id, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil
	}
	a.Status = models.StatusFailed
	a.ErrorType = code
	a.ErrorMessage = message
	return nil
}

func (s *fakeStore) GetTunnelSession(_ context.Context, id string) (*models.TunnelSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tunnels[id]
	if !ok {
		return nil, vcerrors.NotFound("tunnel session", id)
	}
	cp := *t
	return &cp, nil
}

type fakeTunnel struct {
	connected map[string]bool
}

func (f *fakeTunnel) SessionConnected(id string) bool { return f.connected[id] }

type fakeRunner struct {
	mu    sync.Mutex
	ran   []string
	block chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, a *models.Assessment, _ []models.InlineFile) error {
	f.mu.Lock()
	f.ran = append(f.ran, a.ID)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return nil
}

type fakeRobustRunner struct {
	mu  sync.Mutex
	ran []string
}

func (f *fakeRobustRunner) Run(_ context.Context, a *models.Assessment) error {
	f.mu.Lock()
	f.ran = append(f.ran, a.ID)
	f.mu.Unlock()
	return nil
}

func newCoordinator() (*Coordinator, *fakeStore, *fakeTunnel, *fakeRunner, *fakeRobustRunner) {
	store := newFakeStore()
	tun := &fakeTunnel{connected: map[string]bool{}}
	lw := &fakeRunner{}
	rb := &fakeRobustRunner{}
	c := NewCoordinator(store, tun, lw, rb)
	return c, store, tun, lw, rb
}

func TestCreate_LightweightRequiresExactlyOneSource(t *testing.T) {
	c, _, _, _, _ := newCoordinator()

	_, err := c.Create(context.Background(), models.CreateAssessmentRequest{Mode: models.ModeLightweight})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeValidationFailed, verr.Code)

	_, err = c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:    models.ModeLightweight,
		RepoURL: "https://example.com/repo.git",
		Files:   []models.InlineFile{{Path: "a.py", Content: "x = 1"}},
	})
	require.Error(t, err)
}

func TestCreate_LightweightWithRepoURLSchedulesRun(t *testing.T) {
	c, store, _, lw, _ := newCoordinator()

	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:    models.ModeLightweight,
		RepoURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, a.Status)
	assert.Equal(t, models.DepthStandard, a.Depth)

	require.NoError(t, c.Wait())
	assert.Contains(t, lw.ran, a.ID)
	_, ok := store.assessments[a.ID]
	assert.True(t, ok)
}

func TestCreate_RobustRequiresTargetURL(t *testing.T) {
	c, _, _, _, _ := newCoordinator()

	_, err := c.Create(context.Background(), models.CreateAssessmentRequest{Mode: models.ModeRobust})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeValidationFailed, verr.Code)
}

func TestCreate_RobustRejectsUnknownAgent(t *testing.T) {
	c, _, _, _, _ := newCoordinator()

	_, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:      models.ModeRobust,
		TargetURL: "https://target.example.com",
		Agents:    []string{"nonexistent"},
	})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeUnknownAgent, verr.Code)
}

func TestCreate_RobustRejectsDisconnectedTunnelSession(t *testing.T) {
	c, store, tun, _, _ := newCoordinator()
	store.tunnels["tun_1"] = &models.TunnelSession{ID: "tun_1", Status: models.TunnelDisconnected}
	tun.connected["tun_1"] = false

	_, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:            models.ModeRobust,
		TargetURL:       "https://target.example.com",
		TunnelSessionID: "tun_1",
	})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeTunnelNotConnected, verr.Code)
}

func TestCreate_RobustAcceptsConnectedTunnelSession(t *testing.T) {
	c, store, tun, _, rb := newCoordinator()
	store.tunnels["tun_1"] = &models.TunnelSession{ID: "tun_1", Status: models.TunnelConnected}
	tun.connected["tun_1"] = true

	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:            models.ModeRobust,
		TargetURL:       "https://target.example.com",
		TunnelSessionID: "tun_1",
	})
	require.NoError(t, err)
	require.NoError(t, c.Wait())
	assert.Contains(t, rb.ran, a.ID)
}

func TestCreate_IdempotencyKeySameModeReturnsExisting(t *testing.T) {
	c, _, _, _, _ := newCoordinator()

	a1, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:           models.ModeLightweight,
		RepoURL:        "https://example.com/repo.git",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	a2, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:           models.ModeLightweight,
		RepoURL:        "https://example.com/other.git",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)
	assert.Equal(t, a1.RepoURL, a2.RepoURL)

	require.NoError(t, c.Wait())
}

func TestCreate_IdempotencyKeyDifferentModeFails(t *testing.T) {
	c, _, _, _, _ := newCoordinator()

	_, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:           models.ModeLightweight,
		RepoURL:        "https://example.com/repo.git",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	_, err = c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:           models.ModeRobust,
		TargetURL:      "https://target.example.com",
		IdempotencyKey: "key-1",
	})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeDuplicateIdempotencyKey, verr.Code)

	require.NoError(t, c.Wait())
}

func TestGetAndList(t *testing.T) {
	c, _, _, _, _ := newCoordinator()
	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:    models.ModeLightweight,
		RepoURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	got, err := c.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	list, err := c.List(context.Background(), models.AssessmentFilters{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.Wait())
}

func TestDelete(t *testing.T) {
	c, store, _, _, _ := newCoordinator()
	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:    models.ModeLightweight,
		RepoURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), a.ID))
	assert.Contains(t, store.deleted, a.ID)

	require.NoError(t, c.Wait())
}

func TestRerun_RejectsNonTerminalAssessment(t *testing.T) {
	c, store, _, lw, _ := newCoordinator()
	lw.block = make(chan struct{})

	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:    models.ModeLightweight,
		RepoURL: "https://example.com/repo.git",
	})
	require.NoError(t, err)
	store.assessments[a.ID].Status = models.StatusAnalyzing

	_, err = c.Rerun(context.Background(), a.ID, models.RerunOverrides{})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeAssessmentInProgress, verr.Code)

	close(lw.block)
	require.NoError(t, c.Wait())
}

func TestRerun_RejectsInlineFilesLightweightAssessment(t *testing.T) {
	c, store, _, _, _ := newCoordinator()

	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:  models.ModeLightweight,
		Files: []models.InlineFile{{Path: "a.py", Content: "x = 1"}},
	})
	require.NoError(t, err)
	store.assessments[a.ID].Status = models.StatusComplete

	_, err = c.Rerun(context.Background(), a.ID, models.RerunOverrides{})
	require.Error(t, err)
	verr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.CodeValidationFailed, verr.Code)

	require.NoError(t, c.Wait())
}

func TestRerun_ResetsAndReschedules(t *testing.T) {
	c, store, _, lw, _ := newCoordinator()

	a, err := c.Create(context.Background(), models.CreateAssessmentRequest{
		Mode:    models.ModeLightweight,
		RepoURL: "https://example.com/repo.git",
		Agents:  []string{"recon"},
	})
	require.NoError(t, err)
	require.NoError(t, c.Wait())

	store.assessments[a.ID].Status = models.StatusComplete
	store.assessments[a.ID].SeverityCounts = models.SeverityCounts{Total: 3, High: 3}

	rerun, err := c.Rerun(context.Background(), a.ID, models.RerunOverrides{Depth: models.DepthDeep})
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, rerun.Status)
	assert.Equal(t, models.DepthDeep, rerun.Depth)
	assert.Equal(t, 0, rerun.SeverityCounts.Total)
	assert.Contains(t, store.resetCalls, a.ID)

	require.NoError(t, c.Wait())
	assert.Equal(t, []string{a.ID, a.ID}, lw.ran)
}
