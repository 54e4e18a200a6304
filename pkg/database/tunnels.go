package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibecheck/vibecheck/pkg/models"
	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// CreateTunnelSession inserts a new tunnel session row, created when the
// multiplexer receives a client's connect{target_port} message.
func (c *Client) CreateTunnelSession(ctx context.Context, s *models.TunnelSession) error {
	const q = `
		INSERT INTO tunnel_sessions (id, target_port, status, created_at, last_heartbeat_at)
		VALUES ($1,$2,$3,$4,$4)`
	_, err := c.db.ExecContext(ctx, q, s.ID, s.TargetPort, s.Status, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tunnel session: %w", err)
	}
	return nil
}

const tunnelSelectCols = `SELECT id, target_port, status, created_at, last_heartbeat_at`

// GetTunnelSession fetches a tunnel session row by id.
func (c *Client) GetTunnelSession(ctx context.Context, id string) (*models.TunnelSession, error) {
	const q = tunnelSelectCols + ` FROM tunnel_sessions WHERE id=$1`
	row := c.db.QueryRowContext(ctx, q, id)
	s, err := scanTunnelSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vcerrors.NotFound("tunnel session", id)
	}
	return s, err
}

// ListTunnelSessions returns every known tunnel session, most recent first.
func (c *Client) ListTunnelSessions(ctx context.Context) ([]*models.TunnelSession, error) {
	const q = tunnelSelectCols + ` FROM tunnel_sessions ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tunnel sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.TunnelSession
	for rows.Next() {
		s, err := scanTunnelSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateTunnelSessionStatus sets a tunnel session's status.
func (c *Client) UpdateTunnelSessionStatus(ctx context.Context, id string, status models.TunnelSessionStatus) error {
	const q = `UPDATE tunnel_sessions SET status=$2 WHERE id=$1`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("update tunnel session status: %w", err)
	}
	return checkRowsAffected(res, "tunnel session", id)
}

// TouchTunnelHeartbeat updates last_heartbeat_at, called on every pong.
func (c *Client) TouchTunnelHeartbeat(ctx context.Context, id string) error {
	const q = `UPDATE tunnel_sessions SET last_heartbeat_at=now() WHERE id=$1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	return checkRowsAffected(res, "tunnel session", id)
}

// DeleteDisconnectedTunnelSessionsOlderThan removes disconnected tunnel
// session rows whose last_heartbeat_at is older than cutoff. Returns the
// number removed.
func (c *Client) DeleteDisconnectedTunnelSessionsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM tunnel_sessions WHERE status=$1 AND last_heartbeat_at < $2`
	res, err := c.db.ExecContext(ctx, q, models.TunnelDisconnected, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale tunnel sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanTunnelSession(row scanner) (*models.TunnelSession, error) {
	var s models.TunnelSession
	err := row.Scan(&s.ID, &s.TargetPort, &s.Status, &s.CreatedAt, &s.LastHeartbeatAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
