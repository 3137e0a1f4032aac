package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Ban adds userID to the ban list. Banning twice is a no-op.
func (d *DB) Ban(ctx context.Context, userID int64) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO banned_users (user_id, banned_at) VALUES (?, ?)`,
		userID, d.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("banning user %d: %w", userID, err)
	}
	return nil
}

// Unban removes userID from the ban list.
func (d *DB) Unban(ctx context.Context, userID int64) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM banned_users WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("unbanning user %d: %w", userID, err)
	}
	return nil
}

// IsBanned reports whether userID is on the ban list.
func (d *DB) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM banned_users WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ban for user %d: %w", userID, err)
	}
	return true, nil
}
