package api

import (
	"github.com/vibecheck/vibecheck/pkg/database"
	"github.com/vibecheck/vibecheck/pkg/models"
)

// ErrorEnvelope is the JSON body of every non-2xx response, per spec.md §6/§7.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the envelope's single field.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Param   string `json:"param,omitempty"`
	DocURL  string `json:"doc_url,omitempty"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database *database.HealthStatus `json:"database"`
	Tunnel   TunnelHealth           `json:"tunnel"`
	Warnings []string               `json:"warnings,omitempty"`
}

// TunnelHealth summarizes the tunnel multiplexer's live state.
type TunnelHealth struct {
	ActiveSessions int `json:"active_sessions"`
}

// AgentSummary describes one registered agent for GET /v1/agents.
type AgentSummary struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

// AgentDetail describes one registered agent's full definition, including
// its per-depth budgets, for GET /v1/agents/{name}.
type AgentDetail struct {
	AgentSummary
	Budgets map[string]BudgetView `json:"budgets"`
}

// BudgetView is the JSON shape of an agents.Budget.
type BudgetView struct {
	MaxSteps          int `json:"max_steps"`
	MaxHTTPRequests   int `json:"max_http_requests"`
	PerPathAttemptCap int `json:"per_path_attempt_cap"`
}

// AssessmentListResponse wraps a page of assessments with pagination metadata.
type AssessmentListResponse struct {
	Items  []*models.Assessment `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// FindingListResponse wraps a page of findings.
type FindingListResponse struct {
	Items []*models.Finding `json:"items"`
}

// AgentLogListResponse wraps a page of agent logs.
type AgentLogListResponse struct {
	Items []*models.AgentLog `json:"items"`
}

// TunnelSessionListResponse wraps a page of tunnel sessions.
type TunnelSessionListResponse struct {
	Items []*models.TunnelSession `json:"items"`
}
