package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// AdvisoryLock is a session-scoped Postgres advisory lock held on a dedicated
// connection pinned out of the pool. The lock lives until Release is called
// or the connection drops, which is what makes it safe as a cross-process
// singleton guard: a crashed holder releases implicitly.
type AdvisoryLock struct {
	name string
	conn *stdsql.Conn
}

// TryAdvisoryLock attempts to acquire the named lock without blocking.
// It returns (nil, false, nil) when another process holds the lock.
func (c *Client) TryAdvisoryLock(ctx context.Context, name string) (*AdvisoryLock, bool, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to pin connection for advisory lock: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtext($1)::bigint)`, name,
	).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("failed to acquire advisory lock %q: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	return &AdvisoryLock{name: name, conn: conn}, true, nil
}

// Name returns the lock's job name.
func (l *AdvisoryLock) Name() string {
	return l.name
}

// Release unlocks and returns the pinned connection to the pool. Safe to call
// in every exit path; releasing an already-released lock only closes the
// connection again.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	var released bool
	err := l.conn.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock(hashtext($1)::bigint)`, l.name,
	).Scan(&released)
	closeErr := l.conn.Close()
	if err != nil {
		return fmt.Errorf("failed to release advisory lock %q: %w", l.name, err)
	}
	if closeErr != nil && closeErr != stdsql.ErrConnDone {
		return fmt.Errorf("failed to close advisory lock connection: %w", closeErr)
	}
	return nil
}
