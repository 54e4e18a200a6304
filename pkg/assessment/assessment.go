// Package assessment implements the assessment lifecycle coordinator,
// per spec.md §4.1: create/list/get/delete/rerun, idempotency-key
// deduplication, mode preconditions, and background scheduling of the
// lightweight and robust orchestrators.
package assessment

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vibecheck/vibecheck/internal/ids"
	"github.com/vibecheck/vibecheck/pkg/agents"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// Store is the persistence surface the coordinator needs, satisfied by
// *database.Client.
type Store interface {
	CreateAssessment(ctx context.Context, a *models.Assessment) error
	FindAssessmentByIdempotencyKey(ctx context.Context, key string) (*models.Assessment, error)
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	ListAssessments(ctx context.Context, f models.AssessmentFilters) ([]*models.Assessment, error)
	DeleteAssessment(ctx context.Context, id string) error
	ResetForRerun(ctx context.Context, id string, agents []string, depth models.Depth, idempotencyKey *string) error
	FailAssessment(ctx context.Context, id, code, message string) error
	GetTunnelSession(ctx context.Context, id string) (*models.TunnelSession, error)
}

// TunnelChecker reports whether a tunnel session has a live duplex
// channel, satisfied by *tunnel.Registry.
type TunnelChecker interface {
	SessionConnected(sessionID string) bool
}

// LightweightRunner runs the lightweight scan pipeline for one
// assessment, satisfied by *lightweight.Orchestrator.
type LightweightRunner interface {
	Run(ctx context.Context, a *models.Assessment, inlineFiles []models.InlineFile) error
}

// RobustRunner runs the robust scan orchestrator for one assessment,
// satisfied by *robust.Orchestrator.
type RobustRunner interface {
	Run(ctx context.Context, a *models.Assessment) error
}

// Coordinator implements spec.md §4.1.
type Coordinator struct {
	Store       Store
	Tunnel      TunnelChecker
	Lightweight LightweightRunner
	Robust      RobustRunner

	eg errgroup.Group
}

// NewCoordinator constructs a Coordinator wired to its collaborators.
func NewCoordinator(store Store, tunnel TunnelChecker, lw LightweightRunner, rb RobustRunner) *Coordinator {
	return &Coordinator{Store: store, Tunnel: tunnel, Lightweight: lw, Robust: rb}
}

// Create validates req, persists a new queued assessment (or returns the
// prior one on an idempotency-key match), and schedules its orchestrator
// as a fire-and-forget background task, per spec.md §4.1.
func (c *Coordinator) Create(ctx context.Context, req models.CreateAssessmentRequest) (*models.Assessment, error) {
	if req.IdempotencyKey != "" {
		existing, err := c.Store.FindAssessmentByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.Mode != req.Mode {
				return nil, vcerrors.DuplicateIdempotencyKey(req.IdempotencyKey)
			}
			return existing, nil
		}
	}

	if err := c.validate(ctx, req); err != nil {
		return nil, err
	}

	now := time.Now()
	a := &models.Assessment{
		ID:              ids.New(ids.PrefixAssessment),
		Mode:            req.Mode,
		Status:          models.StatusQueued,
		RepoURL:         req.RepoURL,
		TargetURL:       req.TargetURL,
		TunnelSessionID: req.TunnelSessionID,
		Agents:          req.Agents,
		Depth:           depthOrDefault(req.Depth),
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.Store.CreateAssessment(ctx, a); err != nil {
		return nil, err
	}

	c.schedule(a, req.Files)
	return a, nil
}

// validate enforces spec.md §4.1's mode preconditions.
func (c *Coordinator) validate(ctx context.Context, req models.CreateAssessmentRequest) error {
	switch req.Mode {
	case models.ModeLightweight:
		hasRepo := req.RepoURL != ""
		hasFiles := len(req.Files) > 0
		if hasRepo == hasFiles {
			return vcerrors.Validation("repo_url", "exactly one of repo_url or files must be provided")
		}
	case models.ModeRobust:
		if req.TargetURL == "" {
			return vcerrors.Validation("target_url", "target_url is required for robust mode")
		}
		if req.TunnelSessionID != "" {
			sess, err := c.Store.GetTunnelSession(ctx, req.TunnelSessionID)
			if err != nil {
				return err
			}
			if sess.Status != models.TunnelConnected || !c.Tunnel.SessionConnected(req.TunnelSessionID) {
				return vcerrors.TunnelNotConnected(req.TunnelSessionID)
			}
		}
		for _, name := range req.Agents {
			if _, ok := agents.Resolve(name); !ok {
				return vcerrors.UnknownAgent(name)
			}
		}
	default:
		return vcerrors.Validation("mode", "mode must be \"lightweight\" or \"robust\"")
	}
	return nil
}

// Get fetches a single assessment.
func (c *Coordinator) Get(ctx context.Context, id string) (*models.Assessment, error) {
	return c.Store.GetAssessment(ctx, id)
}

// List returns a filtered, paginated assessment page.
func (c *Coordinator) List(ctx context.Context, f models.AssessmentFilters) ([]*models.Assessment, error) {
	return c.Store.ListAssessments(ctx, f)
}

// Delete removes an assessment, cascading to its findings and agent logs.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	return c.Store.DeleteAssessment(ctx, id)
}

// Rerun re-schedules an assessment from a clean slate, per spec.md §4.1:
// only valid when the assessment is terminal; clears prior findings and
// logs; preserves idempotency_key unless the request explicitly
// overrides it.
//
// A lightweight assessment originally created from an inline file set
// (no repo_url) cannot be rerun: the file set is never persisted, so
// there is nothing to re-scan. This is an explicit decision for an Open
// Question spec.md left unresolved.
func (c *Coordinator) Rerun(ctx context.Context, id string, overrides models.RerunOverrides) (*models.Assessment, error) {
	a, err := c.Store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.Terminal() {
		return nil, vcerrors.AssessmentInProgress(id)
	}
	if a.Mode == models.ModeLightweight && a.RepoURL == "" {
		return nil, vcerrors.Validation("repo_url", "cannot rerun a lightweight assessment created from inline files")
	}

	agentNames := a.Agents
	if len(overrides.Agents) > 0 {
		agentNames = overrides.Agents
	}
	depth := a.Depth
	if overrides.Depth != "" {
		depth = overrides.Depth
	}

	if err := c.Store.ResetForRerun(ctx, id, agentNames, depth, overrides.IdempotencyKey); err != nil {
		return nil, err
	}

	a, err = c.Store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	c.schedule(a, nil)
	return a, nil
}

// schedule launches a's orchestrator as a supervised background task.
// The task opens its own context (distinct from the originating
// request's, per spec.md §4.1) and recovers from panics so one
// assessment's failure can never take down the process.
func (c *Coordinator) schedule(a *models.Assessment, files []models.InlineFile) {
	assessment := a
	inlineFiles := files
	c.eg.Go(func() (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("assessment orchestrator panicked", "assessment_id", assessment.ID, "panic", r)
				if err := c.Store.FailAssessment(context.Background(), assessment.ID, "INTERNAL_ERROR", "orchestrator panicked"); err != nil {
					slog.Error("failed to record panic failure", "assessment_id", assessment.ID, "error", err)
				}
			}
		}()

		ctx := context.Background()
		var err error
		switch assessment.Mode {
		case models.ModeLightweight:
			err = c.Lightweight.Run(ctx, assessment, inlineFiles)
		case models.ModeRobust:
			err = c.Robust.Run(ctx, assessment)
		}
		if err != nil {
			slog.Error("assessment run failed", "assessment_id", assessment.ID, "mode", assessment.Mode, "error", err)
		}
		return nil
	})
}

// Wait blocks until every scheduled background task has returned, used
// by the server entrypoint's graceful shutdown.
func (c *Coordinator) Wait() error {
	return c.eg.Wait()
}

func depthOrDefault(d models.Depth) models.Depth {
	if d == "" {
		return models.DepthStandard
	}
	return d
}
