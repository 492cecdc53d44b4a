/*
Package sqlsession is a session store that keeps expiring session records in a
MySQL table and serializes concurrent access to the same session.

# Concept

A host drives one cycle per request: open, read, write, close. Between the
first read and close the store holds a lock on the session id, so two
requests for the same session never interleave their read-modify-write.
Requests for different sessions never wait on each other.

Two locking strategies are available:

  - Transactional: a READ COMMITTED transaction with SELECT ... FOR UPDATE.
    A missing row gets a placeholder insert so the next cycle has a row to
    lock; losing that insert race re-reads the winner's row.
  - Advisory: a named server lock (GET_LOCK) with a bounded wait. No
    transaction is opened and writes are upserts. Locks are released in
    acquisition order at close.

Expired rows are never returned but stay in the table until a garbage
collection sweep, which runs at close when requested during the cycle.

# Usage

	db, err := mysql.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	connector, err := mysql.NewConnector(db)
	if err != nil {
		log.Fatal(err)
	}
	provider, err := session.NewProvider(connector,
		session.WithLocking(session.Advisory()),
		session.WithMaxLifetime(30*time.Minute),
	)
	if err != nil {
		log.Fatal(err)
	}

	err = provider.Run(ctx, sessionID, func(ctx context.Context, data []byte) ([]byte, error) {
		return append(data, '!'), nil
	})

Hosts that need the raw lifecycle use session.Store directly; see
ports.Handler for the contract.

# Packages

  - pkg/session: Store (the lifecycle), Provider (one Store per cycle) and the locking strategies.
  - pkg/adapters/mysql: the database/sql adapter.
  - pkg/adapters/memory: an in-process table with InnoDB-like locking, for tests.
  - pkg/adapters/redis: an optional Redis lock backend for the advisory strategy.
  - pkg/observability: Prometheus metrics and log hooks.
*/
package sqlsession
