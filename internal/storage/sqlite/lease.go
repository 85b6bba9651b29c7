package sqlite

import (
	"context"
	"fmt"
	"time"
)

// AcquireLease takes the named lease if it is free, expired, or already held
// by the same holder. The insert-or-conditional-update runs as one statement
// so two processes sharing the database cannot both win.
func (s *SQLiteStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	expires := time.Now().Add(ttl)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pass_lease (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		    holder = excluded.holder,
		    expires_at = excluded.expires_at
		 WHERE pass_lease.expires_at < ? OR pass_lease.holder = excluded.holder`,
		name, holder, timeToDB(expires), timeToDB(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease acquisition: %w", err)
	}
	return n > 0, nil
}

// ReleaseLease frees the lease if still held by the holder. Releasing a
// lease another holder took over (after expiry) is a no-op.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM pass_lease WHERE name = ? AND holder = ?", name, holder); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
