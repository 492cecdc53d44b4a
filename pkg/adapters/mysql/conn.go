package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
	driver "github.com/go-sql-driver/mysql"
)

// erDupEntry is ER_DUP_ENTRY.
const erDupEntry = 1062

// Conn implements ports.Conn on a dedicated *sql.Conn.
type Conn struct {
	conn       *sql.Conn
	tx         *sql.Tx
	stmts      statements
	lockPrefix string
	heldLocks  int
}

var _ ports.Conn = (*Conn)(nil)

// querier is satisfied by both *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Conn) q() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// BeginReadCommitted implements ports.Conn.
// The driver issues SET TRANSACTION ISOLATION LEVEL READ COMMITTED before
// START TRANSACTION, overriding the server's REPEATABLE READ default for this
// transaction only.
func (c *Conn) BeginReadCommitted(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("mysql: transaction already open")
	}
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("mysql: begin: %w", err)
	}
	c.tx = tx
	return nil
}

// InTx implements ports.Conn.
func (c *Conn) InTx() bool {
	return c.tx != nil
}

// Commit implements ports.Conn.
func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errors.New("mysql: commit without transaction")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

// Rollback implements ports.Conn.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errors.New("mysql: rollback without transaction")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("mysql: rollback: %w", err)
	}
	return nil
}

// Select implements ports.Conn.
func (c *Conn) Select(ctx context.Context, id string, forUpdate bool) (*domain.Record, error) {
	query := c.stmts.selectRow
	if forUpdate {
		query = c.stmts.selectForUpd
	}

	rec := domain.Record{ID: id}
	err := c.q().QueryRowContext(ctx, query, id).Scan(&rec.Expiry, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: select session: %w", err)
	}
	if rec.Data == nil {
		rec.Data = []byte{}
	}
	return &rec, nil
}

// Insert implements ports.Conn.
func (c *Conn) Insert(ctx context.Context, rec domain.Record) error {
	_, err := c.q().ExecContext(ctx, c.stmts.insert, rec.ID, rec.Expiry, payload(rec.Data))
	if isDuplicate(err) {
		return fmt.Errorf("mysql: insert session: %w: %w", domain.ErrDuplicateKey, err)
	}
	if err != nil {
		return fmt.Errorf("mysql: insert session: %w", err)
	}
	return nil
}

// Upsert implements ports.Conn.
func (c *Conn) Upsert(ctx context.Context, rec domain.Record) error {
	data := payload(rec.Data)
	if _, err := c.q().ExecContext(ctx, c.stmts.upsert, rec.ID, rec.Expiry, data, rec.Expiry, data); err != nil {
		return fmt.Errorf("mysql: upsert session: %w", err)
	}
	return nil
}

// Delete implements ports.Conn.
func (c *Conn) Delete(ctx context.Context, id string) error {
	if _, err := c.q().ExecContext(ctx, c.stmts.delete, id); err != nil {
		return fmt.Errorf("mysql: delete session: %w", err)
	}
	return nil
}

// DeleteExpired implements ports.Conn.
func (c *Conn) DeleteExpired(ctx context.Context, before int64) (int64, error) {
	res, err := c.q().ExecContext(ctx, c.stmts.deleteExpired, before)
	if err != nil {
		return 0, fmt.Errorf("mysql: delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: delete expired sessions: %w", err)
	}
	return n, nil
}

// Close implements ports.Conn. A transaction left open is rolled back and
// named locks still held are released before the connection goes back to the
// pool, where the server session would otherwise keep them.
func (c *Conn) Close() error {
	var errs []error
	if c.tx != nil {
		if err := c.Rollback(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if c.heldLocks > 0 {
		if _, err := c.conn.ExecContext(context.Background(), releaseAllLock); err != nil {
			errs = append(errs, fmt.Errorf("mysql: release all locks: %w", err))
		}
		c.heldLocks = 0
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isDuplicate(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}

func payload(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
