// Package models defines the core VibeCheck entities: assessments,
// findings, agent logs, and tunnel sessions. These are plain structs
// shared by the persistence layer, the orchestrators, and the REST API.
package models

import "time"

// Mode is the assessment mode.
type Mode string

const (
	ModeLightweight Mode = "lightweight"
	ModeRobust      Mode = "robust"
)

// Status is the assessment lifecycle status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusCloning   Status = "cloning"
	StatusAnalyzing Status = "analyzing"
	StatusScanning  Status = "scanning"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Depth is the coarse budget dial for robust scans.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// Severity ranks a finding. Order matters: it defines the sort rank used
// by "sort=severity" (critical < high < medium < low < info).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank gives the sort order used by findings "sort=severity".
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Rank returns the sort rank for the severity; unknown severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// ValidSeverity reports whether s is one of the five allowed severities.
func ValidSeverity(s Severity) bool {
	_, ok := severityRank[s]
	return ok
}

// SeverityCounts is the histogram attached to every assessment.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Add increments the counter for sev and the total.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	case SeverityInfo:
		c.Info++
	default:
		return // unknown severities never counted, never included in total
	}
	c.Total++
}

// Assessment is a single request to analyze a target.
type Assessment struct {
	ID              string          `json:"id"`
	Mode            Mode            `json:"mode"`
	Status          Status          `json:"status"`
	RepoURL         string          `json:"repo_url,omitempty"`
	TargetURL       string          `json:"target_url,omitempty"`
	TunnelSessionID string          `json:"tunnel_session_id,omitempty"`
	Agents          []string        `json:"agents,omitempty"`
	Depth           Depth           `json:"depth"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	SeverityCounts  SeverityCounts  `json:"finding_counts"`
	ErrorType       string          `json:"error_type,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Location identifies where a finding was observed. Exactly one of the
// three shapes is populated, mirroring spec.md §3.
type Location struct {
	// file+line+snippet shape
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	// endpoint+url shape
	Type string `json:"type,omitempty"` // "endpoint" when the URL form is used
	URL  string `json:"url,omitempty"`

	// dependency+package+version shape
	Package string `json:"package,omitempty"`
	Version string `json:"version,omitempty"`
}

// Finding is a single observed security issue.
type Finding struct {
	ID           string         `json:"id"`
	AssessmentID string         `json:"assessment_id"`
	Severity     Severity       `json:"severity"`
	Category     string         `json:"category"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Location     *Location      `json:"location,omitempty"`
	Evidence     map[string]any `json:"evidence,omitempty"`
	Remediation  string         `json:"remediation"`
	Agent        string         `json:"agent"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AgentLog is one step of a robust agent's tool-use loop.
type AgentLog struct {
	ID              string    `json:"id"`
	AssessmentID    string    `json:"assessment_id"`
	Agent           string    `json:"agent"`
	Step            int       `json:"step"`
	Action          string    `json:"action"`
	TargetPath      string    `json:"target_path,omitempty"`
	RequestPayload  string    `json:"request_payload,omitempty"`
	ResponseCode    *int      `json:"response_code,omitempty"`
	ResponsePreview string    `json:"response_preview,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	FindingID       string    `json:"finding_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TunnelSessionStatus is the lifecycle status of a tunnel session.
type TunnelSessionStatus string

const (
	TunnelConnected    TunnelSessionStatus = "connected"
	TunnelDisconnected TunnelSessionStatus = "disconnected"
)

// TunnelSession is a duplex channel to a client forward-proxying
// requests to a private target.
type TunnelSession struct {
	ID              string              `json:"id"`
	TargetPort      int                 `json:"target_port"`
	Status          TunnelSessionStatus `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	LastHeartbeatAt time.Time           `json:"last_heartbeat_at"`
}

// InlineFile is a caller-supplied source file for lightweight scans that
// skip repository acquisition.
type InlineFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ProjectInfo is extracted from a repository's manifests.
type ProjectInfo struct {
	Language        string            `json:"language,omitempty"`
	Framework       string            `json:"framework,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	HasGitignore    bool              `json:"has_gitignore"`
	GitignoreLines  []string          `json:"gitignore_lines,omitempty"`
}

// CreateAssessmentRequest is the payload for POST /assessments.
type CreateAssessmentRequest struct {
	Mode            Mode         `json:"mode"`
	RepoURL         string       `json:"repo_url,omitempty"`
	Files           []InlineFile `json:"files,omitempty"`
	TargetURL       string       `json:"target_url,omitempty"`
	TunnelSessionID string       `json:"tunnel_session_id,omitempty"`
	Agents          []string     `json:"agents,omitempty"`
	Depth           Depth        `json:"depth,omitempty"`
	IdempotencyKey  string       `json:"idempotency_key,omitempty"`
}

// RerunOverrides is the payload for POST /assessments/{id}/rerun.
type RerunOverrides struct {
	Agents         []string `json:"agents,omitempty"`
	Depth          Depth    `json:"depth,omitempty"`
	IdempotencyKey *string  `json:"idempotency_key,omitempty"` // nil = leave unchanged
}

// AssessmentFilters filters GET /assessments.
type AssessmentFilters struct {
	Mode   Mode
	Status Status
	Sort   string // "+field" or "-field"
	Limit  int
	Offset int
}

// FindingFilters filters GET /assessments/{id}/findings.
type FindingFilters struct {
	Severity Severity
	Category string
	Agent    string
	Sort     string // "severity" orders by rank then created_at
}
