package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecheck/vibecheck/internal/ids"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

func newAssessment(mode models.Mode) *models.Assessment {
	return &models.Assessment{
		ID:        ids.New(ids.PrefixAssessment),
		Mode:      mode,
		Status:    models.StatusQueued,
		Depth:     models.DepthStandard,
		RepoURL:   "https://example.com/repo.git",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestAssessmentLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := newAssessment(models.ModeLightweight)
	require.NoError(t, client.CreateAssessment(ctx, a))

	got, err := client.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, models.StatusQueued, got.Status)

	require.NoError(t, client.UpdateAssessmentStatus(ctx, a.ID, models.StatusAnalyzing))
	got, err = client.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzing, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, client.UpdateAssessmentStatus(ctx, a.ID, models.StatusComplete))
	got, err = client.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, got.Status)
	require.NotNil(t, got.CompletedAt)

	require.NoError(t, client.DeleteAssessment(ctx, a.ID))
	_, err = client.GetAssessment(ctx, a.ID)
	vcErr, ok := vcerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, vcerrors.KindNotFound, vcErr.Kind)
}

func TestAssessment_IdempotencyKeyUniqueness(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a1 := newAssessment(models.ModeLightweight)
	a1.IdempotencyKey = "k1"
	require.NoError(t, client.CreateAssessment(ctx, a1))

	found, err := client.FindAssessmentByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a1.ID, found.ID)

	a2 := newAssessment(models.ModeRobust)
	a2.IdempotencyKey = "k1"
	err = client.CreateAssessment(ctx, a2)
	assert.Error(t, err)
}

func TestRefreshSeverityCounts(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := newAssessment(models.ModeLightweight)
	require.NoError(t, client.CreateAssessment(ctx, a))

	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityCritical, models.SeverityHigh, models.SeverityInfo} {
		f := &models.Finding{
			ID:           ids.New(ids.PrefixFinding),
			AssessmentID: a.ID,
			Severity:     sev,
			Category:     "test",
			Title:        "t",
			Description:  "d",
			Remediation:  "r",
			Agent:        "static",
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, client.CreateFinding(ctx, f))
	}

	counts, err := client.RefreshSeverityCounts(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Critical)
	assert.Equal(t, 1, counts.High)
	assert.Equal(t, 1, counts.Info)
	assert.Equal(t, 4, counts.Total)

	got, err := client.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.SeverityCounts.Total)
}

func TestResetForRerun_ClearsFindingsAndLogs(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := newAssessment(models.ModeRobust)
	require.NoError(t, client.CreateAssessment(ctx, a))

	f := &models.Finding{
		ID: ids.New(ids.PrefixFinding), AssessmentID: a.ID, Severity: models.SeverityLow,
		Category: "c", Title: "t", Description: "d", Remediation: "r", Agent: "recon",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, client.CreateFinding(ctx, f))

	step, err := client.NextStep(ctx, a.ID, "recon")
	require.NoError(t, err)
	require.Equal(t, 1, step)
	require.NoError(t, client.CreateAgentLog(ctx, &models.AgentLog{
		ID: ids.New(ids.PrefixAgentLog), AssessmentID: a.ID, Agent: "recon", Step: step,
		Action: "probe", CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, client.ResetForRerun(ctx, a.ID, []string{"recon"}, models.DepthDeep, nil))

	findings, err := client.ListFindings(ctx, a.ID, models.FindingFilters{})
	require.NoError(t, err)
	assert.Empty(t, findings)

	logs, err := client.ListAgentLogs(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	got, err := client.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Equal(t, models.DepthDeep, got.Depth)
	assert.Equal(t, "", got.IdempotencyKey) // nil override leaves it unchanged (was already empty)
}
