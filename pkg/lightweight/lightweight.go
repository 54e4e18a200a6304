// Package lightweight implements the lightweight scan pipeline, per
// spec.md §4.2: repo acquisition or inline files, project-fact
// extraction, the four deterministic analyzers, and an optional LLM
// contextual pass.
package lightweight

import (
	"context"
	"time"

	"github.com/vibecheck/vibecheck/internal/ids"
	"github.com/vibecheck/vibecheck/pkg/acquire"
	"github.com/vibecheck/vibecheck/pkg/analyze"
	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/projectinfo"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// Store is the persistence surface the lightweight pipeline needs,
// satisfied by *database.Client.
type Store interface {
	UpdateAssessmentStatus(ctx context.Context, id string, status models.Status) error
	FailAssessment(ctx context.Context, id, code, message string) error
	CreateFinding(ctx context.Context, f *models.Finding) error
	RefreshSeverityCounts(ctx context.Context, id string) (models.SeverityCounts, error)
}

// Orchestrator runs the lightweight scan for one assessment.
type Orchestrator struct {
	Store        Store
	LLM          llmclient.Client
	LLMReady     bool
	CloneBaseDir string
	CloneTimeout time.Duration
}

// Run executes spec.md §4.2 end to end for a. inlineFiles is used
// verbatim when a.RepoURL is empty (lightweight mode's file-set path).
func (o *Orchestrator) Run(ctx context.Context, a *models.Assessment, inlineFiles []models.InlineFile) error {
	rawFiles, err := o.acquireFiles(ctx, a)
	if err != nil {
		if verr, ok := vcerrors.As(err); ok {
			return o.Store.FailAssessment(ctx, a.ID, verr.Code, verr.Message)
		}
		return o.Store.FailAssessment(ctx, a.ID, vcerrors.CodeCloneFailed, err.Error())
	}
	if rawFiles == nil {
		rawFiles = inlineFiles
	}

	if err := o.Store.UpdateAssessmentStatus(ctx, a.ID, models.StatusAnalyzing); err != nil {
		return err
	}

	info := projectinfo.Detect(rawFiles)
	files := toAnalyzeFiles(rawFiles)

	var findings []analyze.Finding
	findings = append(findings, analyze.Dependency(info.Dependencies)...)
	findings = append(findings, analyze.Pattern(files)...)
	findings = append(findings, analyze.Secret(files)...)
	findings = append(findings, analyze.Config(files)...)
	if o.LLMReady {
		findings = append(findings, analyze.LLMContextual(ctx, o.LLM, files, info)...)
	}

	now := time.Now()
	for _, f := range findings {
		finding := &models.Finding{
			ID:           ids.New(ids.PrefixFinding),
			AssessmentID: a.ID,
			Severity:     f.Severity,
			Category:     f.Category,
			Title:        f.Title,
			Description:  f.Description,
			Location:     f.Location,
			Evidence:     f.Evidence,
			Remediation:  f.Remediation,
			Agent:        "static",
			CreatedAt:    now,
		}
		if err := o.Store.CreateFinding(ctx, finding); err != nil {
			return err
		}
	}

	if _, err := o.Store.RefreshSeverityCounts(ctx, a.ID); err != nil {
		return err
	}
	return o.Store.UpdateAssessmentStatus(ctx, a.ID, models.StatusComplete)
}

// acquireFiles performs the clone step when a.RepoURL is set, returning
// nil (not an error) when the assessment supplies inline files instead.
// Cleanup of the clone working directory always runs, per spec.md §4.2
// step 7, regardless of whether the read-filtered step that follows
// succeeds.
func (o *Orchestrator) acquireFiles(ctx context.Context, a *models.Assessment) ([]models.InlineFile, error) {
	if a.RepoURL == "" {
		return nil, nil
	}

	if err := o.Store.UpdateAssessmentStatus(ctx, a.ID, models.StatusCloning); err != nil {
		return nil, err
	}

	workDir, err := acquire.Clone(ctx, o.CloneBaseDir, a.RepoURL, o.cloneTimeout())
	if err != nil {
		return nil, vcerrors.CloneFailed(a.RepoURL, err)
	}
	defer acquire.Cleanup(workDir)

	files, err := acquire.ReadFiltered(workDir)
	if err != nil {
		return nil, vcerrors.CloneFailed(a.RepoURL, err)
	}
	return files, nil
}

func (o *Orchestrator) cloneTimeout() time.Duration {
	if o.CloneTimeout > 0 {
		return o.CloneTimeout
	}
	return 60 * time.Second
}

func toAnalyzeFiles(files []models.InlineFile) []analyze.File {
	out := make([]analyze.File, len(files))
	for i, f := range files {
		out[i] = analyze.File{Path: f.Path, Content: f.Content}
	}
	return out
}
