package ports

import (
	"context"

	"github.com/aretw0/sqlsession/pkg/domain"
)

// Conn is a single connection to the session table.
// A Conn belongs to one request cycle and is not safe for concurrent use.
type Conn interface {
	NamedLocker

	// BeginReadCommitted starts a transaction at the READ COMMITTED isolation level.
	BeginReadCommitted(ctx context.Context) error

	// InTx reports whether a transaction is open on this connection.
	InTx() bool

	// Commit commits the open transaction, releasing its row locks.
	Commit(ctx context.Context) error

	// Rollback aborts the open transaction, releasing its row locks.
	Rollback(ctx context.Context) error

	// Select returns the record for id, or nil if no row exists.
	// With forUpdate the row is locked until the transaction ends.
	Select(ctx context.Context, id string, forUpdate bool) (*domain.Record, error)

	// Insert adds a new row. A primary key conflict matches domain.ErrDuplicateKey.
	Insert(ctx context.Context, rec domain.Record) error

	// Upsert inserts the row or, on conflict, updates its expiry and data.
	Upsert(ctx context.Context, rec domain.Record) error

	// Delete removes the row for id. A missing row is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes every row whose expiry is strictly before the given Unix time.
	DeleteExpired(ctx context.Context, before int64) (int64, error)

	// Close returns the connection to its pool.
	Close() error
}

// Connector acquires a dedicated Conn for one request cycle.
type Connector interface {
	Conn(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

// Conn implements Connector.
func (f ConnectorFunc) Conn(ctx context.Context) (Conn, error) {
	return f(ctx)
}
