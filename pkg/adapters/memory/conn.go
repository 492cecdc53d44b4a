package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
)

var (
	errConnClosed = errors.New("memory: connection closed")
	errTxOpen     = errors.New("memory: transaction already open")
	errNoTx       = errors.New("memory: no transaction open")
)

// tx holds the uncommitted writes and row locks of one transaction.
// A nil record in writes marks a deletion.
type tx struct {
	writes map[string]*domain.Record
	locked []string
}

func newTx() *tx {
	return &tx{writes: make(map[string]*domain.Record)}
}

// Conn implements ports.Conn against a Table.
// Statements outside a transaction run in autocommit mode.
type Conn struct {
	table  *Table
	tx     *tx
	closed bool
}

var _ ports.Conn = (*Conn)(nil)

// BeginReadCommitted implements ports.Conn.
func (c *Conn) BeginReadCommitted(ctx context.Context) error {
	if c.closed {
		return errConnClosed
	}
	if c.tx != nil {
		return errTxOpen
	}
	c.tx = newTx()
	return nil
}

// InTx implements ports.Conn.
func (c *Conn) InTx() bool {
	return c.tx != nil
}

// Commit implements ports.Conn.
func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errNoTx
	}
	c.table.finish(c.tx, true)
	c.tx = nil
	return nil
}

// Rollback implements ports.Conn.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errNoTx
	}
	c.table.finish(c.tx, false)
	c.tx = nil
	return nil
}

// Select implements ports.Conn.
// A locking read inside a transaction waits for rows that exist or are being
// inserted by another transaction; a row nobody has touched is not locked,
// mirroring READ COMMITTED without gap locks.
func (c *Conn) Select(ctx context.Context, id string, forUpdate bool) (*domain.Record, error) {
	if c.closed {
		return nil, errConnClosed
	}
	if forUpdate && c.tx != nil {
		c.table.mu.Lock()
		_, exists := c.table.rows[id]
		contended := c.table.lockedByOther(c.tx, id)
		c.table.mu.Unlock()

		if exists || contended {
			if err := c.table.lockRow(ctx, c.tx, id); err != nil {
				return nil, fmt.Errorf("memory: select %q for update: %w", id, err)
			}
		}
	}
	return c.view(id), nil
}

// Insert implements ports.Conn.
func (c *Conn) Insert(ctx context.Context, rec domain.Record) error {
	return c.mutate(ctx, rec.ID, func(owner *tx, current *domain.Record) (*domain.Record, error) {
		if current != nil {
			return nil, fmt.Errorf("memory: insert %q: %w", rec.ID, domain.ErrDuplicateKey)
		}
		next := copyRecord(rec)
		return &next, nil
	})
}

// Upsert implements ports.Conn.
func (c *Conn) Upsert(ctx context.Context, rec domain.Record) error {
	return c.mutate(ctx, rec.ID, func(owner *tx, current *domain.Record) (*domain.Record, error) {
		next := copyRecord(rec)
		return &next, nil
	})
}

// Delete implements ports.Conn.
func (c *Conn) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, id, func(owner *tx, current *domain.Record) (*domain.Record, error) {
		return nil, nil
	})
}

// DeleteExpired implements ports.Conn.
// Each candidate is locked and re-checked before deletion, so rows refreshed
// by a concurrent writer in the meantime survive.
func (c *Conn) DeleteExpired(ctx context.Context, before int64) (int64, error) {
	if c.closed {
		return 0, errConnClosed
	}

	c.table.mu.Lock()
	var candidates []string
	for id, rec := range c.table.rows {
		if rec.Expiry < before {
			candidates = append(candidates, id)
		}
	}
	c.table.mu.Unlock()

	var deleted int64
	for _, id := range candidates {
		err := c.mutate(ctx, id, func(owner *tx, current *domain.Record) (*domain.Record, error) {
			if current == nil || current.Expiry >= before {
				return current, errSkip
			}
			deleted++
			return nil, nil
		})
		if err != nil && !errors.Is(err, errSkip) {
			return deleted, err
		}
	}
	return deleted, nil
}

var errSkip = errors.New("skip")

// Lock implements ports.NamedLocker.
// A negative wait blocks until the lock is free or ctx is done.
func (c *Conn) Lock(ctx context.Context, name string, wait time.Duration) (ports.UnlockFunc, error) {
	if c.closed {
		return nil, errConnClosed
	}

	var timeout <-chan time.Time
	if wait >= 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	t := c.table
	for {
		t.mu.Lock()
		l, ok := t.names[name]
		if !ok {
			t.names[name] = &namedLock{owner: c, count: 1, done: make(chan struct{})}
			t.mu.Unlock()
			return c.unlocker(name), nil
		}
		if l.owner == c {
			l.count++
			t.mu.Unlock()
			return c.unlocker(name), nil
		}
		done := l.done
		t.mu.Unlock()

		select {
		case <-done:
		case <-timeout:
			return nil, fmt.Errorf("memory: lock %q: %w", name, domain.ErrLockTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Conn) unlocker(name string) ports.UnlockFunc {
	return func(ctx context.Context) error {
		t := c.table
		t.mu.Lock()
		defer t.mu.Unlock()

		l, ok := t.names[name]
		if !ok || l.owner != c {
			return fmt.Errorf("memory: lock %q is not held by this connection", name)
		}
		l.count--
		if l.count == 0 {
			close(l.done)
			delete(t.names, name)
		}
		return nil
	}
}

// Close implements ports.Conn. An open transaction is rolled back and named
// locks still held are released, as when a server session ends.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	if c.tx != nil {
		c.table.finish(c.tx, false)
		c.tx = nil
	}

	t := c.table
	t.mu.Lock()
	for name, l := range t.names {
		if l.owner == c {
			close(l.done)
			delete(t.names, name)
		}
	}
	t.mu.Unlock()

	c.closed = true
	return nil
}

// view returns the row as this connection sees it: its own uncommitted
// writes first, then the latest committed state.
func (c *Conn) view(id string) *domain.Record {
	if c.tx != nil {
		if rec, ok := c.tx.writes[id]; ok {
			if rec == nil {
				return nil
			}
			out := copyRecord(*rec)
			return &out
		}
	}
	rec, ok := c.table.Get(id)
	if !ok {
		return nil
	}
	return &rec
}

// mutate locks the row for id, computes its next value and stages it in the
// open transaction or applies it immediately in autocommit mode.
func (c *Conn) mutate(ctx context.Context, id string, next func(owner *tx, current *domain.Record) (*domain.Record, error)) error {
	if c.closed {
		return errConnClosed
	}

	owner := c.tx
	autocommit := owner == nil
	if autocommit {
		owner = newTx()
	}

	if err := c.table.lockRow(ctx, owner, id); err != nil {
		if autocommit {
			c.table.finish(owner, false)
		}
		return fmt.Errorf("memory: lock row %q: %w", id, err)
	}

	rec, err := next(owner, c.viewFor(owner, id))
	if err == nil {
		owner.writes[id] = rec
	}
	if autocommit {
		c.table.finish(owner, err == nil)
	}
	return err
}

func (c *Conn) viewFor(owner *tx, id string) *domain.Record {
	if rec, ok := owner.writes[id]; ok {
		return rec
	}
	rec, ok := c.table.Get(id)
	if !ok {
		return nil
	}
	return &rec
}
