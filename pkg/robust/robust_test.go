package robust

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

type fakeStore struct {
	status     models.Status
	errType    string
	errMessage string
	counts     models.SeverityCounts
	findings   []*models.Finding
	logs       []*models.AgentLog
	steps      map[string]int
}

func newFakeStore() *fakeStore { return &fakeStore{steps: map[string]int{}} }

func (s *fakeStore) NextStep(_ context.Context, assessmentID, agent string) (int, error) {
	key := assessmentID + "|" + agent
	s.steps[key]++
	return s.steps[key], nil
}
func (s *fakeStore) CreateAgentLog(_ context.Context, l *models.AgentLog) error {
	s.logs = append(s.logs, l)
	return nil
}
func (s *fakeStore) CreateFinding(_ context.Context, f *models.Finding) error {
	s.findings = append(s.findings, f)
	return nil
}
func (s *fakeStore) UpdateAssessmentStatus(_ context.Context, _ string, status models.Status) error {
	s.status = status
	return nil
}
func (s *fakeStore) FailAssessment(_ context.Context, _, code, message string) error {
	s.status = models.StatusFailed
	s.errType = code
	s.errMessage = message
	return nil
}
func (s *fakeStore) RefreshSeverityCounts(_ context.Context, _ string) (models.SeverityCounts, error) {
	for _, f := range s.findings {
		s.counts.Add(f.Severity)
	}
	return s.counts, nil
}
func (s *fakeStore) Now(_ context.Context) (time.Time, error) { return time.Now(), nil }
func (s *fakeStore) DeleteFindingsAfterWatermark(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}
func (s *fakeStore) DeleteAgentLogsAfterWatermark(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func TestOrchestrator_MissingLLMKeyFailsImmediately(t *testing.T) {
	store := newFakeStore()
	o := &Orchestrator{Store: store, LLMReady: false}
	a := &models.Assessment{ID: "asm_1", Mode: models.ModeRobust, TargetURL: "http://127.0.0.1:1", Depth: models.DepthQuick}

	require.NoError(t, o.Run(context.Background(), a))
	assert.Equal(t, models.StatusFailed, store.status)
	assert.Equal(t, vcerrors.CodeGeminiAPIKeyMissing, store.errType)
}

func TestOrchestrator_UnreachableTargetFails(t *testing.T) {
	store := newFakeStore()
	o := &Orchestrator{Store: store, LLM: &llmclient.Stub{}, LLMReady: true, ProbeTimeout: 200 * time.Millisecond}
	a := &models.Assessment{ID: "asm_1", Mode: models.ModeRobust, TargetURL: "http://127.0.0.1:1", Depth: models.DepthQuick, Agents: []string{"recon"}}

	require.NoError(t, o.Run(context.Background(), a))
	assert.Equal(t, models.StatusFailed, store.status)
	assert.Equal(t, vcerrors.CodeTargetUnreachable, store.errType)
}

func TestOrchestrator_UnknownAgentNameFailsWhenNoneSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	o := &Orchestrator{Store: store, LLM: &llmclient.Stub{}, LLMReady: true, ProbeTimeout: time.Second}
	a := &models.Assessment{ID: "asm_1", Mode: models.ModeRobust, TargetURL: srv.URL, Depth: models.DepthQuick, Agents: []string{"not-a-real-agent"}}

	require.NoError(t, o.Run(context.Background(), a))
	assert.Equal(t, models.StatusFailed, store.status)
	assert.Equal(t, vcerrors.CodeAgentExecutionFailed, store.errType)
}

func TestOrchestrator_SuccessfulRunCompletesWithCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	stub := &llmclient.Stub{Responses: []llmclient.Response{
		{Calls: []llmclient.Call{{Name: "report_finding", Args: map[string]any{
			"severity": "low", "category": "info_disclosure", "title": "t", "description": "d", "remediation": "r",
		}}}},
		{Text: "done"},
	}}
	o := &Orchestrator{Store: store, LLM: stub, LLMReady: true, ProbeTimeout: time.Second}
	a := &models.Assessment{ID: "asm_1", Mode: models.ModeRobust, TargetURL: srv.URL, Depth: models.DepthQuick, Agents: []string{"recon"}}

	require.NoError(t, o.Run(context.Background(), a))
	assert.Equal(t, models.StatusComplete, store.status)
	assert.Equal(t, 1, store.counts.Total)
	assert.Equal(t, 1, store.counts.Low)
}
