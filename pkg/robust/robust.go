// Package robust implements the robust scan orchestrator, per spec.md
// §4.5: coverage discovery, sequential per-agent budgeted tool-use
// loops, and aggregate status reduction.
package robust

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vibecheck/vibecheck/pkg/agents"
	"github.com/vibecheck/vibecheck/pkg/coverage"
	"github.com/vibecheck/vibecheck/pkg/httpprobe"
	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// Store is the persistence surface the robust orchestrator needs,
// satisfied by *database.Client.
type Store interface {
	agents.Store
	UpdateAssessmentStatus(ctx context.Context, id string, status models.Status) error
	FailAssessment(ctx context.Context, id, code, message string) error
	RefreshSeverityCounts(ctx context.Context, id string) (models.SeverityCounts, error)
	Now(ctx context.Context) (time.Time, error)
	DeleteFindingsAfterWatermark(ctx context.Context, assessmentID, agent string, watermark time.Time) error
	DeleteAgentLogsAfterWatermark(ctx context.Context, assessmentID, agent string, watermark time.Time) error
}

// TunnelProxy routes an agent's outbound probe through a live tunnel
// session instead of a direct HTTP connection, per SPEC_FULL.md §4.8 /
// spec.md §9 (agent probes route through proxy_request when a tunnel is
// configured).
type TunnelProxy func(ctx context.Context, sessionID, method, path string, headers map[string]string, body string) (*httpprobe.Response, error)

// Orchestrator runs the robust scan for one assessment.
type Orchestrator struct {
	Store       Store
	LLM         llmclient.Client
	LLMReady    bool
	Proxy       TunnelProxy
	ProbeTimeout time.Duration
}

// Run executes spec.md §4.5 end to end for a, mutating its persisted
// status/findings/logs as it goes.
func (o *Orchestrator) Run(ctx context.Context, a *models.Assessment) error {
	if !o.LLMReady {
		return o.Store.FailAssessment(ctx, a.ID, vcerrors.CodeGeminiAPIKeyMissing, "no LLM API key configured")
	}

	if err := o.Store.UpdateAssessmentStatus(ctx, a.ID, models.StatusScanning); err != nil {
		return err
	}

	probe := o.proberFor(a)

	rootResp, err := probe(ctx, http.MethodGet, "/", nil, "")
	if err != nil {
		return o.Store.FailAssessment(ctx, a.ID, vcerrors.CodeTargetUnreachable, err.Error())
	}
	_ = rootResp

	covProbe := func(ctx context.Context, url string) (*httpprobe.Response, error) {
		return httpprobe.Do(ctx, httpprobe.Request{Method: http.MethodGet, URL: url}, o.timeout())
	}
	if o.Proxy != nil && a.TunnelSessionID != "" {
		covProbe = func(ctx context.Context, url string) (*httpprobe.Response, error) {
			path := strings.TrimPrefix(url, a.TargetURL)
			return o.Proxy(ctx, a.TunnelSessionID, http.MethodGet, path, nil, "")
		}
	}
	cov := coverage.Build(ctx, a.TargetURL, a.Depth, covProbe)

	var succeeded int
	var failures []string

	for _, name := range a.Agents {
		def, ok := agents.Resolve(name)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: unknown agent", name))
			continue
		}

		watermark, err := o.Store.Now(ctx)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		runner := agents.NewRunner(def, a.ID, a.TargetURL, a.Depth, o.Store, o.LLM, probe, cov)
		if runErr := runner.Run(ctx); runErr != nil {
			slog.Error("robust agent failed", "assessment_id", a.ID, "agent", name, "error", runErr)
			if delErr := o.Store.DeleteFindingsAfterWatermark(ctx, a.ID, name, watermark); delErr != nil {
				slog.Error("rollback findings failed", "assessment_id", a.ID, "agent", name, "error", delErr)
			}
			if delErr := o.Store.DeleteAgentLogsAfterWatermark(ctx, a.ID, name, watermark); delErr != nil {
				slog.Error("rollback agent logs failed", "assessment_id", a.ID, "agent", name, "error", delErr)
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, truncateErr(runErr)))
			continue
		}
		succeeded++
	}

	if _, err := o.Store.RefreshSeverityCounts(ctx, a.ID); err != nil {
		return err
	}

	if succeeded == 0 {
		return o.Store.FailAssessment(ctx, a.ID, vcerrors.CodeAgentExecutionFailed, strings.Join(failures, "; "))
	}
	return o.Store.UpdateAssessmentStatus(ctx, a.ID, models.StatusComplete)
}

func (o *Orchestrator) proberFor(a *models.Assessment) agents.Prober {
	if o.Proxy != nil && a.TunnelSessionID != "" {
		return func(ctx context.Context, method, path string, hdrs map[string]string, body string) (*httpprobe.Response, error) {
			return o.Proxy(ctx, a.TunnelSessionID, method, path, hdrs, body)
		}
	}
	return func(ctx context.Context, method, path string, hdrs map[string]string, body string) (*httpprobe.Response, error) {
		return httpprobe.Do(ctx, httpprobe.Request{
			Method:  method,
			URL:     httpprobe.JoinURL(a.TargetURL, path),
			Headers: hdrs,
			Body:    body,
		}, o.timeout())
	}
}

func (o *Orchestrator) timeout() time.Duration {
	if o.ProbeTimeout > 0 {
		return o.ProbeTimeout
	}
	return 10 * time.Second
}

func truncateErr(err error) string {
	s := err.Error()
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
