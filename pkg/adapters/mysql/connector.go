// Package mysql implements the session store connection on MySQL or MariaDB
// through database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
	driver "github.com/go-sql-driver/mysql"
)

// DefaultLockPrefix namespaces advisory lock names on a shared server.
const DefaultLockPrefix = "sess:"

// Connector implements ports.Connector over a *sql.DB pool.
type Connector struct {
	db         *sql.DB
	schema     Schema
	stmts      statements
	lockPrefix string
}

// Option configures the Connector.
type Option func(*Connector)

// WithSchema overrides table and column names.
func WithSchema(s Schema) Option {
	return func(c *Connector) {
		c.schema = s
	}
}

// WithLockPrefix sets the prefix of advisory lock names.
func WithLockPrefix(prefix string) Option {
	return func(c *Connector) {
		c.lockPrefix = prefix
	}
}

// NewConnector creates a Connector on an existing pool.
func NewConnector(db *sql.DB, opts ...Option) (*Connector, error) {
	c := &Connector{
		db:         db,
		schema:     DefaultSchema(),
		lockPrefix: DefaultLockPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.schema.Validate(); err != nil {
		return nil, err
	}
	// Leave room for a 40-char digest within the server's name limit.
	if len(c.lockPrefix) > maxLockName-40 {
		return nil, fmt.Errorf("%w: lock prefix %q is longer than %d bytes", domain.ErrInvalidConfig, c.lockPrefix, maxLockName-40)
	}
	c.stmts = c.schema.statements()
	return c, nil
}

// Open builds a *sql.DB for the given driver config.
func Open(cfg *driver.Config) (*sql.DB, error) {
	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Conn implements ports.Connector. Each call checks a dedicated connection out
// of the pool.
func (c *Connector) Conn(ctx context.Context) (ports.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("mysql: acquire connection: %w", err)
	}
	return &Conn{conn: conn, stmts: c.stmts, lockPrefix: c.lockPrefix}, nil
}

// Schema returns the validated schema.
func (c *Connector) Schema() Schema {
	return c.schema
}

// Ping checks that the server is reachable.
func (c *Connector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
