package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// NextStep returns the next step index for (assessmentID, agent), so
// that step values form 1..N with no gaps (spec.md §8).
func (c *Client) NextStep(ctx context.Context, assessmentID, agent string) (int, error) {
	var max sql.NullInt64
	const q = `SELECT max(step) FROM agent_logs WHERE assessment_id=$1 AND agent=$2`
	if err := c.db.QueryRowContext(ctx, q, assessmentID, agent).Scan(&max); err != nil {
		return 0, fmt.Errorf("next step: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// CreateAgentLog inserts a step log row.
func (c *Client) CreateAgentLog(ctx context.Context, l *models.AgentLog) error {
	const q = `
		INSERT INTO agent_logs
			(id, assessment_id, agent, step, action, target_path, request_payload,
			 response_code, response_preview, reasoning, finding_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := c.db.ExecContext(ctx, q, l.ID, l.AssessmentID, l.Agent, l.Step, l.Action,
		nullable(l.TargetPath), nullable(l.RequestPayload), l.ResponseCode,
		nullable(l.ResponsePreview), nullable(l.Reasoning), nullable(l.FindingID), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert agent log: %w", err)
	}
	return nil
}

const agentLogSelectCols = `
	SELECT id, assessment_id, agent, step, action, COALESCE(target_path,''),
		COALESCE(request_payload,''), response_code, COALESCE(response_preview,''),
		COALESCE(reasoning,''), COALESCE(finding_id,''), created_at`

// ListAgentLogs returns every step log for an assessment, ordered by
// agent then step.
func (c *Client) ListAgentLogs(ctx context.Context, assessmentID string) ([]*models.AgentLog, error) {
	const q = agentLogSelectCols + ` FROM agent_logs WHERE assessment_id=$1 ORDER BY agent, step`
	rows, err := c.db.QueryContext(ctx, q, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list agent logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentLog
	for rows.Next() {
		l, err := scanAgentLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteAgentLogsAfterWatermark removes step logs for (assessmentID,
// agent) created after watermark, the agent_logs half of the failed
// robust agent rollback described in SPEC_FULL.md §4.5.
func (c *Client) DeleteAgentLogsAfterWatermark(ctx context.Context, assessmentID, agent string, watermark time.Time) error {
	const q = `DELETE FROM agent_logs WHERE assessment_id=$1 AND agent=$2 AND created_at > $3`
	_, err := c.db.ExecContext(ctx, q, assessmentID, agent, watermark)
	if err != nil {
		return fmt.Errorf("rollback agent logs: %w", err)
	}
	return nil
}

// Now returns the current time, used as the "before this agent started"
// watermark for rollback (database/findings.go, database/agentlogs.go).
func (c *Client) Now(ctx context.Context) (time.Time, error) {
	var t time.Time
	if err := c.db.QueryRowContext(ctx, `SELECT now()`).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("select now: %w", err)
	}
	return t, nil
}

func scanAgentLog(row scanner) (*models.AgentLog, error) {
	var l models.AgentLog
	var responseCode sql.NullInt64
	err := row.Scan(&l.ID, &l.AssessmentID, &l.Agent, &l.Step, &l.Action, &l.TargetPath,
		&l.RequestPayload, &responseCode, &l.ResponsePreview, &l.Reasoning, &l.FindingID, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if responseCode.Valid {
		v := int(responseCode.Int64)
		l.ResponseCode = &v
	}
	return &l, nil
}
