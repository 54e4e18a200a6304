package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// CreateAssessment inserts a new assessment row in status=queued.
func (c *Client) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	agentsJSON, err := json.Marshal(a.Agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	countsJSON, err := json.Marshal(a.SeverityCounts)
	if err != nil {
		return fmt.Errorf("marshal severity_counts: %w", err)
	}

	const q = `
		INSERT INTO assessments
			(id, mode, status, repo_url, target_url, tunnel_session_id, agents,
			 depth, idempotency_key, severity_counts, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`

	_, err = c.db.ExecContext(ctx, q,
		a.ID, a.Mode, a.Status, nullable(a.RepoURL), nullable(a.TargetURL),
		nullable(a.TunnelSessionID), agentsJSON, a.Depth, nullable(a.IdempotencyKey),
		countsJSON, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("idempotency key conflict: %w", err)
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// FindAssessmentByIdempotencyKey returns the assessment carrying key, if any.
func (c *Client) FindAssessmentByIdempotencyKey(ctx context.Context, key string) (*models.Assessment, error) {
	const q = assessmentSelectCols + ` FROM assessments WHERE idempotency_key = $1`
	row := c.db.QueryRowContext(ctx, q, key)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetAssessment fetches a single assessment by id.
func (c *Client) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	const q = assessmentSelectCols + ` FROM assessments WHERE id = $1`
	row := c.db.QueryRowContext(ctx, q, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vcerrors.NotFound("assessment", id)
	}
	return a, err
}

// ListAssessments returns a filtered, paginated, sorted assessment page.
func (c *Client) ListAssessments(ctx context.Context, f models.AssessmentFilters) ([]*models.Assessment, error) {
	query := assessmentSelectCols + ` FROM assessments WHERE 1=1`
	var args []any
	n := 0
	addArg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.Mode != "" {
		query += " AND mode = " + addArg(f.Mode)
	}
	if f.Status != "" {
		query += " AND status = " + addArg(f.Status)
	}

	field, desc := parseSort(f.Sort, "created_at")
	query += fmt.Sprintf(" ORDER BY %s %s", field, dir(desc))

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT " + addArg(limit)
	query += " OFFSET " + addArg(maxInt(f.Offset, 0))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus transitions the assessment's status, setting completed_at
// when the new status is terminal.
func (c *Client) UpdateAssessmentStatus(ctx context.Context, id string, status models.Status) error {
	const q = `
		UPDATE assessments SET status=$2, updated_at=now(),
			completed_at = CASE WHEN $3 THEN now() ELSE completed_at END
		WHERE id=$1`
	res, err := c.db.ExecContext(ctx, q, id, status, status.Terminal())
	if err != nil {
		return fmt.Errorf("update assessment status: %w", err)
	}
	return checkRowsAffected(res, "assessment", id)
}

// FailAssessment transitions to failed with an error code/message, per
// spec.md §7 (message truncated to 500 chars).
func (c *Client) FailAssessment(ctx context.Context, id, code, message string) error {
	if len(message) > 500 {
		message = message[:500]
	}
	const q = `
		UPDATE assessments SET status=$2, error_type=$3, error_message=$4,
			completed_at=now(), updated_at=now()
		WHERE id=$1`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusFailed, strings.ToUpper(code), message)
	if err != nil {
		return fmt.Errorf("fail assessment: %w", err)
	}
	return checkRowsAffected(res, "assessment", id)
}

// RefreshSeverityCounts recomputes the histogram from the findings table
// and writes the denormalized snapshot, per SPEC_FULL.md §3.
func (c *Client) RefreshSeverityCounts(ctx context.Context, id string) (models.SeverityCounts, error) {
	var counts models.SeverityCounts
	const q = `SELECT severity, count(*) FROM findings WHERE assessment_id=$1 GROUP BY severity`
	rows, err := c.db.QueryContext(ctx, q, id)
	if err != nil {
		return counts, fmt.Errorf("count findings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sev models.Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return counts, err
		}
		for i := 0; i < n; i++ {
			counts.Add(sev)
		}
	}
	if err := rows.Err(); err != nil {
		return counts, err
	}

	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return counts, err
	}
	const upd = `UPDATE assessments SET severity_counts=$2, updated_at=now() WHERE id=$1`
	if _, err := c.db.ExecContext(ctx, upd, id, countsJSON); err != nil {
		return counts, fmt.Errorf("write severity_counts: %w", err)
	}
	return counts, nil
}

// DeleteAssessment removes the assessment, cascading to its findings and
// agent logs via the foreign key ON DELETE CASCADE.
func (c *Client) DeleteAssessment(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM assessments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	return checkRowsAffected(res, "assessment", id)
}

// ResetForRerun clears an assessment's findings/agent_logs, resets its
// histogram and completion time, and returns it to queued.
func (c *Client) ResetForRerun(ctx context.Context, id string, agents []string, depth models.Depth, idempotencyKey *string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rerun tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_logs WHERE assessment_id=$1`, id); err != nil {
		return fmt.Errorf("clear agent_logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE assessment_id=$1`, id); err != nil {
		return fmt.Errorf("clear findings: %w", err)
	}

	zero, _ := json.Marshal(models.SeverityCounts{})

	agentsJSON, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}

	const q = `
		UPDATE assessments
		SET status=$2, agents=$3, depth=$4, severity_counts=$5,
			error_type=NULL, error_message=NULL, completed_at=NULL, updated_at=now(),
			idempotency_key = COALESCE($6, idempotency_key)
		WHERE id=$1`
	if _, err := tx.ExecContext(ctx, q, id, models.StatusQueued, agentsJSON, depth, zero, idempotencyKey); err != nil {
		return fmt.Errorf("reset assessment: %w", err)
	}

	return tx.Commit()
}

// DeleteAssessmentsOlderThan removes every terminal assessment whose
// completed_at is older than cutoff, cascading to its findings and
// agent logs. Returns the number of assessments removed.
func (c *Client) DeleteAssessmentsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM assessments WHERE completed_at IS NOT NULL AND completed_at < $1`
	res, err := c.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old assessments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

const assessmentSelectCols = `
	SELECT id, mode, status, COALESCE(repo_url,''), COALESCE(target_url,''),
		COALESCE(tunnel_session_id,''), agents, depth, COALESCE(idempotency_key,''),
		severity_counts, COALESCE(error_type,''), COALESCE(error_message,''),
		created_at, updated_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row scanner) (*models.Assessment, error) {
	var a models.Assessment
	var agentsJSON, countsJSON []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.Mode, &a.Status, &a.RepoURL, &a.TargetURL, &a.TunnelSessionID,
		&agentsJSON, &a.Depth, &a.IdempotencyKey, &countsJSON, &a.ErrorType,
		&a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(agentsJSON) > 0 {
		if err := json.Unmarshal(agentsJSON, &a.Agents); err != nil {
			return nil, fmt.Errorf("unmarshal agents: %w", err)
		}
	}
	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &a.SeverityCounts); err != nil {
			return nil, fmt.Errorf("unmarshal severity_counts: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value") ||
		strings.Contains(err.Error(), "SQLSTATE 23505")
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return vcerrors.NotFound(resource, id)
	}
	return nil
}

func parseSort(sort, defaultField string) (field string, desc bool) {
	if sort == "" {
		return defaultField, true
	}
	desc = strings.HasPrefix(sort, "-")
	field = strings.TrimPrefix(strings.TrimPrefix(sort, "-"), "+")
	switch field {
	case "created_at", "updated_at", "status", "mode":
	default:
		field = defaultField
	}
	return field, desc
}

func dir(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
