package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConnContract runs a suite of tests to verify that a Connector and the
// Conns it hands out adhere to the defined interface contract.
// The connector must support at least two concurrently open connections.
func RunConnContract(t *testing.T, connector Connector) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")
	id := func(name string) string { return fmt.Sprintf("%s-%s", prefix, name) }
	future := time.Now().Add(time.Hour).Unix()

	open := func(t *testing.T) Conn {
		t.Helper()
		conn, err := connector.Conn(ctx)
		require.NoError(t, err, "Conn should not return error")
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	t.Run("Select Non-Existent", func(t *testing.T) {
		conn := open(t)
		rec, err := conn.Select(ctx, id("missing"), false)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Upsert and Select", func(t *testing.T) {
		conn := open(t)
		sid := id("upsert")

		require.NoError(t, conn.Upsert(ctx, domain.Record{ID: sid, Expiry: future, Data: []byte("one")}))
		require.NoError(t, conn.Upsert(ctx, domain.Record{ID: sid, Expiry: future + 1, Data: []byte("two")}))

		rec, err := conn.Select(ctx, sid, false)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, sid, rec.ID)
		assert.Equal(t, future+1, rec.Expiry)
		assert.Equal(t, "two", string(rec.Data))
	})

	t.Run("Insert Duplicate", func(t *testing.T) {
		conn := open(t)
		sid := id("dup")

		require.NoError(t, conn.Insert(ctx, domain.Record{ID: sid, Expiry: future}))
		err := conn.Insert(ctx, domain.Record{ID: sid, Expiry: future})
		assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	})

	t.Run("Delete", func(t *testing.T) {
		conn := open(t)
		sid := id("delete")

		require.NoError(t, conn.Upsert(ctx, domain.Record{ID: sid, Expiry: future, Data: []byte("x")}))
		require.NoError(t, conn.Delete(ctx, sid))
		require.NoError(t, conn.Delete(ctx, sid), "Deleting a missing row should not fail")

		rec, err := conn.Select(ctx, sid, false)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		conn := open(t)
		stale, live := id("stale"), id("live")
		now := time.Now().Unix()

		require.NoError(t, conn.Upsert(ctx, domain.Record{ID: stale, Expiry: now - 10}))
		require.NoError(t, conn.Upsert(ctx, domain.Record{ID: live, Expiry: now}))

		n, err := conn.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		rec, err := conn.Select(ctx, stale, false)
		require.NoError(t, err)
		assert.Nil(t, rec, "Rows with expiry < before must be deleted")

		rec, err = conn.Select(ctx, live, false)
		require.NoError(t, err)
		assert.NotNil(t, rec, "Rows with expiry == before must survive")
	})

	t.Run("Rollback Discards", func(t *testing.T) {
		conn := open(t)
		sid := id("rollback")

		require.NoError(t, conn.BeginReadCommitted(ctx))
		assert.True(t, conn.InTx())
		require.NoError(t, conn.Insert(ctx, domain.Record{ID: sid, Expiry: future}))
		require.NoError(t, conn.Rollback(ctx))
		assert.False(t, conn.InTx())

		rec, err := conn.Select(ctx, sid, false)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Commit Publishes", func(t *testing.T) {
		writer, reader := open(t), open(t)
		sid := id("commit")

		require.NoError(t, writer.BeginReadCommitted(ctx))
		require.NoError(t, writer.Upsert(ctx, domain.Record{ID: sid, Expiry: future, Data: []byte("v")}))

		rec, err := reader.Select(ctx, sid, false)
		require.NoError(t, err)
		assert.Nil(t, rec, "Uncommitted rows must not be visible to other connections")

		require.NoError(t, writer.Commit(ctx))

		rec, err = reader.Select(ctx, sid, false)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "v", string(rec.Data))
	})

	t.Run("Named Lock Contention", func(t *testing.T) {
		holder, waiter := open(t), open(t)
		name := id("lock")

		unlock, err := holder.Lock(ctx, name, time.Second)
		require.NoError(t, err)

		_, err = waiter.Lock(ctx, name, 50*time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrLockTimeout)

		require.NoError(t, unlock(ctx))

		unlock2, err := waiter.Lock(ctx, name, time.Second)
		require.NoError(t, err)
		assert.NoError(t, unlock2(ctx))
	})
}
