package mysql

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
)

// maxLockName is the server limit on GET_LOCK names (MySQL 5.7+).
const maxLockName = 64

const (
	getLock        = "SELECT GET_LOCK(?, ?)"
	releaseLock    = "DO RELEASE_LOCK(?)"
	releaseAllLock = "DO RELEASE_ALL_LOCKS()"
)

// lockName prefixes id and falls back to a SHA-1 digest when the result would
// exceed the server's name limit.
func lockName(prefix, id string) string {
	name := prefix + id
	if len(name) <= maxLockName {
		return name
	}
	sum := sha1.Sum([]byte(id))
	return prefix + hex.EncodeToString(sum[:])
}

// lockSeconds converts a wait budget to GET_LOCK's whole-second timeout.
// A negative wait means wait forever.
func lockSeconds(wait time.Duration) int64 {
	if wait < 0 {
		return -1
	}
	return int64(math.Ceil(wait.Seconds()))
}

// Lock implements ports.NamedLocker with GET_LOCK on this connection.
// The lock is bound to the server session, so it is always taken and
// released on the dedicated *sql.Conn, never through the pool.
func (c *Conn) Lock(ctx context.Context, id string, wait time.Duration) (ports.UnlockFunc, error) {
	name := lockName(c.lockPrefix, id)

	var got sql.NullInt64
	if err := c.conn.QueryRowContext(ctx, getLock, name, lockSeconds(wait)).Scan(&got); err != nil {
		return nil, fmt.Errorf("mysql: get lock %q: %w", name, err)
	}
	switch {
	case !got.Valid:
		return nil, fmt.Errorf("mysql: get lock %q: server returned NULL", name)
	case got.Int64 == 0:
		return nil, fmt.Errorf("mysql: get lock %q: %w", name, domain.ErrLockTimeout)
	}

	c.heldLocks++
	return func(ctx context.Context) error {
		if _, err := c.conn.ExecContext(ctx, releaseLock, name); err != nil {
			return fmt.Errorf("mysql: release lock %q: %w", name, err)
		}
		c.heldLocks--
		return nil
	}, nil
}
