package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a named lock.
type UnlockFunc func(ctx context.Context) error

// NamedLocker provides advisory locks keyed by an arbitrary name, independent of any row.
type NamedLocker interface {
	// Lock blocks until the lock for name is held, wait elapses, or ctx is done.
	// A wait timeout is reported as domain.ErrLockTimeout.
	// Returns an UnlockFunc that MUST be called exactly once to release the lock.
	Lock(ctx context.Context, name string, wait time.Duration) (UnlockFunc, error)
}

// ScopedLocker is a NamedLocker shared between cycles that can hand out a
// per-cycle view. Locks taken twice through one view are reentrant, matching
// the per-connection semantics of server-side named locks.
type ScopedLocker interface {
	NamedLocker
	Owner() NamedLocker
}
