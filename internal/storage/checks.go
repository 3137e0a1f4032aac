package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Check is the stored result of one monitor cycle for one service.
type Check struct {
	ID         int64     `json:"id"`
	ServiceID  string    `json:"service_id"`
	Status     Health    `json:"status"`
	Attempts   int       `json:"attempts"`
	ResponseMs int64     `json:"response_ms"`
	Error      string    `json:"error"`
	CheckedAt  time.Time `json:"checked_at"`
}

// InsertCheck persists a classification.
func (d *DB) InsertCheck(ctx context.Context, c Check) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO checks (service_id, status, attempts, response_ms, error, checked_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ServiceID,
		string(c.Status),
		c.Attempts,
		c.ResponseMs,
		c.Error,
		c.CheckedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting check for %q: %w", c.ServiceID, err)
	}
	return nil
}

// ServiceHistory returns paginated check history for a service plus the total count.
func (d *DB) ServiceHistory(ctx context.Context, serviceID string, limit, offset int) ([]Check, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checks WHERE service_id = ?`, serviceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting checks for %q: %w", serviceID, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, service_id, status, attempts, response_ms, error, checked_at
		 FROM checks WHERE service_id = ? ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		serviceID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", serviceID, err)
	}
	defer rows.Close()

	checks, err := scanChecks(rows)
	if err != nil {
		return nil, 0, err
	}
	return checks, total, nil
}

// UptimePercent returns the percentage of "up" checks in the last N checks for a service.
func (d *DB) UptimePercent(ctx context.Context, serviceID string, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM checks WHERE service_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, serviceID, last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime for %q: %w", serviceID, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

func scanChecks(rows *sql.Rows) ([]Check, error) {
	checks := []Check{}
	for rows.Next() {
		var c Check
		var status, checkedAt string
		if err := rows.Scan(&c.ID, &c.ServiceID, &status, &c.Attempts, &c.ResponseMs, &c.Error, &checkedAt); err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		c.Status = Health(status)
		t, err := parseTime(checkedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
		}
		c.CheckedAt = t
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return checks, nil
}
