// Package agents implements the per-agent budgeted tool-use loop driven
// by an external LLM function-caller, per spec.md §4.7, and the agent
// registry, per spec.md §2.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vibecheck/vibecheck/internal/ids"
	"github.com/vibecheck/vibecheck/pkg/coverage"
	"github.com/vibecheck/vibecheck/pkg/headers"
	"github.com/vibecheck/vibecheck/pkg/httpprobe"
	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/models"
)

// Budget is the per-depth budget table from spec.md §4.7.
type Budget struct {
	MaxSteps         int
	MaxHTTPRequests  int
	PerPathAttemptCap int
}

var budgets = map[models.Depth]Budget{
	models.DepthQuick:    {MaxSteps: 10, MaxHTTPRequests: 30, PerPathAttemptCap: 2},
	models.DepthStandard: {MaxSteps: 28, MaxHTTPRequests: 85, PerPathAttemptCap: 3},
	models.DepthDeep:      {MaxSteps: 55, MaxHTTPRequests: 170, PerPathAttemptCap: 4},
}

// BudgetFor returns the budget for depth, defaulting to standard.
func BudgetFor(depth models.Depth) Budget {
	if b, ok := budgets[depth]; ok {
		return b
	}
	return budgets[models.DepthStandard]
}

// Store is the persistence surface an agent run needs. It is satisfied
// by *database.Client; defined here to keep this package independently
// testable against a fake.
type Store interface {
	NextStep(ctx context.Context, assessmentID, agent string) (int, error)
	CreateAgentLog(ctx context.Context, l *models.AgentLog) error
	CreateFinding(ctx context.Context, f *models.Finding) error
}

// Prober issues the agent's outbound http_request calls. The robust
// orchestrator supplies either a direct httpprobe.Do-backed prober or
// one that routes through the tunnel multiplexer's proxy_request when
// the assessment has a live tunnel session (SPEC_FULL.md §4.1/§9).
type Prober func(ctx context.Context, method, path string, headers map[string]string, body string) (*httpprobe.Response, error)

// Definition is one registered agent: a name and the mission system
// prompt that parameterizes the shared loop, per spec.md §4.7.
type Definition struct {
	Name         string
	SystemPrompt string
}

// Runner executes one agent's tool-use loop for one assessment.
type Runner struct {
	Def          Definition
	AssessmentID string
	TargetURL    string
	Depth        models.Depth
	Store        Store
	LLM          llmclient.Client
	Probe        Prober
	Coverage     coverage.Result

	budget          Budget
	httpCount       int
	pathAttempts    map[string]int
	stepCount       int
}

// NewRunner constructs a Runner with the depth's budget preloaded.
func NewRunner(def Definition, assessmentID, targetURL string, depth models.Depth, store Store, llm llmclient.Client, probe Prober, cov coverage.Result) *Runner {
	return &Runner{
		Def:          def,
		AssessmentID: assessmentID,
		TargetURL:    targetURL,
		Depth:        depth,
		Store:        store,
		LLM:          llm,
		Probe:        probe,
		Coverage:     cov,
		budget:       BudgetFor(depth),
		pathAttempts: map[string]int{},
	}
}

var toolDeclarations = []llmclient.ToolDeclaration{
	{
		Name:        "http_request",
		Description: "Issue a single outbound HTTP request against the target.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"method":  map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}},
				"path":    map[string]any{"type": "string"},
				"headers": map[string]any{"type": "object"},
				"body":    map[string]any{"type": "string"},
			},
			"required": []string{"method", "path"},
		},
	},
	{
		Name:        "check_headers",
		Description: "HEAD-probe a path and classify its security headers.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
		},
	},
	{
		Name:        "report_finding",
		Description: "Persist one observed security finding.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"severity":    map[string]any{"type": "string", "enum": []string{"critical", "high", "medium", "low", "info"}},
				"category":    map[string]any{"type": "string"},
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"evidence":    map[string]any{"type": "object"},
				"remediation": map[string]any{"type": "string"},
			},
			"required": []string{"severity", "category", "title", "description", "remediation"},
		},
	},
}

// Run executes the loop until the model stops calling tools or
// max_steps is reached, per spec.md §4.7.
func (r *Runner) Run(ctx context.Context) error {
	conversation := []llmclient.Turn{{Role: llmclient.RoleUser, Text: r.initialTurn()}}

	for r.stepCount < r.budget.MaxSteps {
		resp, err := r.LLM.Generate(ctx, r.Def.SystemPrompt, conversation, toolDeclarations, 0.2)
		if err != nil {
			return fmt.Errorf("agent %s: llm generate: %w", r.Def.Name, err)
		}
		if resp.Text == "" && len(resp.Calls) == 0 {
			return nil
		}
		if len(resp.Calls) == 0 {
			return nil
		}

		conversation = append(conversation, llmclient.Turn{Role: llmclient.RoleModel, Calls: resp.Calls})

		var results []llmclient.ToolResult
		for _, call := range resp.Calls {
			if r.stepCount >= r.budget.MaxSteps {
				break
			}
			result := r.dispatch(ctx, call)
			results = append(results, llmclient.ToolResult{Name: call.Name, Result: result})
		}
		conversation = append(conversation, llmclient.Turn{Role: llmclient.RoleUser, Results: results})
	}
	return nil
}

func (r *Runner) initialTurn() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\nDepth: %s\n", r.TargetURL, r.Depth)
	fmt.Fprintf(&b, "Budgets: max_steps=%d max_http_requests=%d per_path_attempt_cap=%d\n",
		r.budget.MaxSteps, r.budget.MaxHTTPRequests, r.budget.PerPathAttemptCap)
	b.WriteString("Prioritize breadth before depth.\n\n")

	seeds := r.Coverage.SeedPaths
	if len(seeds) > 60 {
		seeds = seeds[:60]
	}
	fmt.Fprintf(&b, "Seed paths: %s\n", strings.Join(seeds, ", "))

	reachable := r.Coverage.ReachablePaths
	if len(reachable) > 60 {
		reachable = reachable[:60]
	}
	var reachableStrs []string
	for _, p := range reachable {
		reachableStrs = append(reachableStrs, fmt.Sprintf("%s(%d)", p.Path, p.Status))
	}
	fmt.Fprintf(&b, "Reachable paths: %s\n", strings.Join(reachableStrs, ", "))

	samples := r.Coverage.RequestSamples
	if len(samples) > 20 {
		samples = samples[:20]
	}
	fmt.Fprintf(&b, "Request samples: %s\n", strings.Join(samples, ", "))
	return b.String()
}

// dispatch executes one tool call, logging a step row for every
// invocation, per spec.md §4.7.
func (r *Runner) dispatch(ctx context.Context, call llmclient.Call) map[string]any {
	switch call.Name {
	case "http_request":
		return r.doHTTPRequest(ctx, call.Args)
	case "check_headers":
		return r.doCheckHeaders(ctx, call.Args)
	case "report_finding":
		return r.doReportFinding(ctx, call.Args)
	default:
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
	}
}

func (r *Runner) doHTTPRequest(ctx context.Context, args map[string]any) map[string]any {
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	path, _ := args["path"].(string)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	body, _ := args["body"].(string)
	hdrs := toStringMap(args["headers"])

	if r.httpCount >= r.budget.MaxHTTPRequests {
		r.writeLog(ctx, "http_request", path, fmt.Sprintf("%s %s", method, path), nil, "request_budget_exceeded", "")
		return map[string]any{"error": "request_budget_exceeded"}
	}

	key := fmt.Sprintf("%s %s", strings.ToUpper(method), path)
	if r.pathAttempts[key] >= r.budget.PerPathAttemptCap {
		r.writeLog(ctx, "http_request", path, key, nil, "path_attempt_limit_reached", "")
		return map[string]any{"error": "path_attempt_limit_reached"}
	}

	r.httpCount++
	r.pathAttempts[key]++

	resp, err := r.Probe(ctx, method, path, hdrs, body)
	if err != nil {
		r.writeLog(ctx, "http_request", path, key, nil, err.Error(), "")
		return map[string]any{"error": err.Error()}
	}

	r.writeLog(ctx, "http_request", path, key, &resp.StatusCode, "", truncate(resp.Body, 2000))
	return map[string]any{
		"status_code":  resp.StatusCode,
		"headers":      flattenHeader(resp.Headers),
		"body_preview": truncate(resp.Body, 2000),
		"url":          resp.URL,
	}
}

func (r *Runner) doCheckHeaders(ctx context.Context, args map[string]any) map[string]any {
	path, _ := args["path"].(string)
	if path == "" {
		path = "/"
	}
	result, err := headers.Check(ctx, r.TargetURL, path, 10*time.Second)
	if err != nil {
		r.writeLog(ctx, "check_headers", path, "check_headers "+path, nil, err.Error(), "")
		return map[string]any{"error": err.Error()}
	}
	r.writeLog(ctx, "check_headers", path, "check_headers "+path, &result.StatusCode, "", result.Summary())

	issues := make([]map[string]any, 0, len(result.Issues))
	for _, iss := range result.Issues {
		issues = append(issues, map[string]any{"header": iss.Header, "severity": iss.Severity, "description": iss.Description})
	}
	return map[string]any{"status_code": result.StatusCode, "issues": issues}
}

func (r *Runner) doReportFinding(ctx context.Context, args map[string]any) map[string]any {
	sev := models.Severity(stringArg(args, "severity"))
	if !models.ValidSeverity(sev) {
		return map[string]any{"error": fmt.Sprintf("invalid severity %q", sev)}
	}

	evidence := toAnyMap(args["evidence"])
	var loc *models.Location
	if url, ok := evidence["url"].(string); ok && url != "" {
		loc = &models.Location{Type: "endpoint", URL: url}
	}

	finding := &models.Finding{
		ID:           ids.New(ids.PrefixFinding),
		AssessmentID: r.AssessmentID,
		Severity:     sev,
		Category:     stringArg(args, "category"),
		Title:        stringArg(args, "title"),
		Description:  stringArg(args, "description"),
		Location:     loc,
		Evidence:     evidence,
		Remediation:  stringArg(args, "remediation"),
		Agent:        r.Def.Name,
	}

	if err := r.Store.CreateFinding(ctx, finding); err != nil {
		return map[string]any{"error": err.Error()}
	}

	r.writeLogWithFinding(ctx, "report_finding", "", "report_finding", nil, "", finding.Title, finding.ID)
	return map[string]any{"finding_id": finding.ID}
}

func (r *Runner) writeLog(ctx context.Context, action, targetPath, requestPayload string, responseCode *int, reasoning, preview string) {
	r.writeLogWithFinding(ctx, action, targetPath, requestPayload, responseCode, reasoning, preview, "")
}

func (r *Runner) writeLogWithFinding(ctx context.Context, action, targetPath, requestPayload string, responseCode *int, reasoning, preview, findingID string) {
	step, err := r.Store.NextStep(ctx, r.AssessmentID, r.Def.Name)
	if err != nil {
		step = r.stepCount + 1
	}
	r.stepCount++
	if err := r.Store.CreateAgentLog(ctx, &models.AgentLog{
		ID:              ids.New(ids.PrefixAgentLog),
		AssessmentID:    r.AssessmentID,
		Agent:           r.Def.Name,
		Step:            step,
		Action:          action,
		TargetPath:      targetPath,
		RequestPayload:  requestPayload,
		ResponseCode:    responseCode,
		ResponsePreview: preview,
		Reasoning:       reasoning,
		FindingID:       findingID,
	}); err != nil {
		slog.Error("agent: failed to persist step log", "assessment_id", r.AssessmentID, "agent", r.Def.Name, "step", step, "error", err)
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func toStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func toAnyMap(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
