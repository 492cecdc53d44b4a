// Package memory is an in-process session table that mimics InnoDB row and
// named locking, for tests and demos without a MySQL server.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
)

// rowLock is an exclusive record lock held by one transaction.
type rowLock struct {
	owner *tx
	done  chan struct{} // closed on release
}

// namedLock is a reentrant advisory lock held by one connection.
type namedLock struct {
	owner *Conn
	count int
	done  chan struct{} // closed on release
}

// Table is an in-process session table shared by many connections.
// It emulates the parts of InnoDB behaviour the session store depends on:
// exclusive row locks held until commit, READ COMMITTED visibility,
// blocking duplicate inserts and reentrant named locks.
// Safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	rows  map[string]domain.Record
	locks map[string]*rowLock
	names map[string]*namedLock
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		rows:  make(map[string]domain.Record),
		locks: make(map[string]*rowLock),
		names: make(map[string]*namedLock),
	}
}

// Conn implements ports.Connector.
func (t *Table) Conn(ctx context.Context) (ports.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Conn{table: t}, nil
}

// Get returns a copy of the committed row for id.
func (t *Table) Get(id string) (domain.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.rows[id]
	if !ok {
		return domain.Record{}, false
	}
	return copyRecord(rec), true
}

// Put writes a committed row directly, bypassing locks. Intended for seeding.
func (t *Table) Put(rec domain.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[rec.ID] = copyRecord(rec)
}

// Len returns the number of committed rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// IDs returns the committed session ids in lexical order.
func (t *Table) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// lockRow blocks until owner holds the row lock for id.
func (t *Table) lockRow(ctx context.Context, owner *tx, id string) error {
	for {
		t.mu.Lock()
		l, ok := t.locks[id]
		if !ok {
			t.locks[id] = &rowLock{owner: owner, done: make(chan struct{})}
			owner.locked = append(owner.locked, id)
			t.mu.Unlock()
			return nil
		}
		if l.owner == owner {
			t.mu.Unlock()
			return nil
		}
		done := l.done
		t.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// lockedByOther reports whether id is locked by a transaction other than owner.
// Caller holds t.mu.
func (t *Table) lockedByOther(owner *tx, id string) bool {
	l, ok := t.locks[id]
	return ok && l.owner != owner
}

// finish applies (when commit is set) and releases everything owner holds.
func (t *Table) finish(owner *tx, commit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if commit {
		for id, rec := range owner.writes {
			if rec == nil {
				delete(t.rows, id)
				continue
			}
			t.rows[id] = *rec
		}
	}
	for _, id := range owner.locked {
		if l, ok := t.locks[id]; ok && l.owner == owner {
			close(l.done)
			delete(t.locks, id)
		}
	}
	owner.locked = nil
	owner.writes = nil
}

func copyRecord(rec domain.Record) domain.Record {
	out := rec
	out.Data = append([]byte(nil), rec.Data...)
	return out
}
