package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// CreateFinding inserts a finding row.
func (c *Client) CreateFinding(ctx context.Context, f *models.Finding) error {
	locJSON, evJSON, err := marshalFindingExtras(f)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO findings
			(id, assessment_id, severity, category, title, description, location,
			 evidence, remediation, agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = c.db.ExecContext(ctx, q, f.ID, f.AssessmentID, f.Severity, f.Category,
		f.Title, f.Description, locJSON, evJSON, f.Remediation, f.Agent, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func marshalFindingExtras(f *models.Finding) (locJSON, evJSON []byte, err error) {
	if f.Location != nil {
		locJSON, err = json.Marshal(f.Location)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal location: %w", err)
		}
	}
	if f.Evidence != nil {
		evJSON, err = json.Marshal(f.Evidence)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal evidence: %w", err)
		}
	}
	return locJSON, evJSON, nil
}

const findingSelectCols = `
	SELECT id, assessment_id, severity, category, title, description,
		location, evidence, remediation, agent, created_at`

// GetFinding fetches a single finding scoped to an assessment.
func (c *Client) GetFinding(ctx context.Context, assessmentID, findingID string) (*models.Finding, error) {
	const q = findingSelectCols + ` FROM findings WHERE assessment_id=$1 AND id=$2`
	row := c.db.QueryRowContext(ctx, q, assessmentID, findingID)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vcerrors.NotFound("finding", findingID)
	}
	return f, err
}

// ListFindings returns findings for an assessment, filtered and sorted
// per spec.md §6 (sort=severity orders by rank then creation time).
func (c *Client) ListFindings(ctx context.Context, assessmentID string, f models.FindingFilters) ([]*models.Finding, error) {
	query := findingSelectCols + ` FROM findings WHERE assessment_id=$1`
	args := []any{assessmentID}
	n := 1
	add := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if f.Severity != "" {
		query += " AND severity = " + add(f.Severity)
	}
	if f.Category != "" {
		query += " AND category = " + add(f.Category)
	}
	if f.Agent != "" {
		query += " AND agent = " + add(f.Agent)
	}

	if f.Sort == "severity" {
		query += ` ORDER BY
			CASE severity
				WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2
				WHEN 'low' THEN 3 WHEN 'info' THEN 4 ELSE 5
			END, created_at ASC`
	} else {
		query += " ORDER BY created_at ASC"
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []*models.Finding
	for rows.Next() {
		fnd, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fnd)
	}
	return out, rows.Err()
}

// DeleteFindingsAfter removes findings for (assessmentID, agent) created
// after watermarkID's row, used to roll back a failed robust agent's
// in-flight writes (SPEC_FULL.md §4.5).
func (c *Client) DeleteFindingsAfterWatermark(ctx context.Context, assessmentID, agent string, watermark time.Time) error {
	const q = `
		DELETE FROM findings
		WHERE assessment_id=$1 AND agent=$2 AND created_at > $3`
	_, err := c.db.ExecContext(ctx, q, assessmentID, agent, watermark)
	if err != nil {
		return fmt.Errorf("rollback findings: %w", err)
	}
	return nil
}

func scanFinding(row scanner) (*models.Finding, error) {
	var f models.Finding
	var locJSON, evJSON []byte
	err := row.Scan(&f.ID, &f.AssessmentID, &f.Severity, &f.Category, &f.Title,
		&f.Description, &locJSON, &evJSON, &f.Remediation, &f.Agent, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(locJSON) > 0 {
		var loc models.Location
		if err := json.Unmarshal(locJSON, &loc); err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
		f.Location = &loc
	}
	if len(evJSON) > 0 {
		var ev map[string]any
		if err := json.Unmarshal(evJSON, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		f.Evidence = ev
	}
	return &f, nil
}
