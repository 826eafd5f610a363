package db

import (
	"context"
	"fmt"
)

// WithAdvisoryLock runs fn while holding the session-level advisory lock
// lockID. It reports false without running fn when another session holds it.
// Lock and unlock go through one pooled connection.
func (db *DB) WithAdvisoryLock(ctx context.Context, lockID int64, fn func(ctx context.Context) error) (bool, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection for lock: %w", err)
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		return false, nil
	}

	defer func() {
		//nolint:contextcheck // unlock must run even when ctx is canceled
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			db.Logger.Warn().Err(err).Int64("lock_id", lockID).Msg("failed to release advisory lock")
		}
	}()

	return true, fn(ctx)
}
