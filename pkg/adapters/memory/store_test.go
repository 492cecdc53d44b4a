package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/sqlsession/pkg/adapters/memory"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConn_Contract(t *testing.T) {
	ports.RunConnContract(t, memory.NewTable())
}

func TestMemoryConn_ConcurrentInsertWaitsThenConflicts(t *testing.T) {
	table := memory.NewTable()
	ctx := context.Background()
	a, _ := table.Conn(ctx)
	b, _ := table.Conn(ctx)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.BeginReadCommitted(ctx))
	require.NoError(t, b.BeginReadCommitted(ctx))

	// Both see nothing: an untouched id takes no lock.
	rec, err := a.Select(ctx, "abc", true)
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = b.Select(ctx, "abc", true)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, a.Insert(ctx, domain.Record{ID: "abc", Expiry: 10, Data: []byte("from-a")}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Insert(ctx, domain.Record{ID: "abc", Expiry: 10})
	}()

	select {
	case err := <-errCh:
		t.Fatalf("second insert should block on the uncommitted row, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, a.Commit(ctx))
	assert.ErrorIs(t, <-errCh, domain.ErrDuplicateKey)

	rec, err = b.Select(ctx, "abc", true)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "from-a", string(rec.Data))
	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, 1, table.Len())
}

func TestMemoryConn_RollbackLetsWaiterInsert(t *testing.T) {
	table := memory.NewTable()
	ctx := context.Background()
	a, _ := table.Conn(ctx)
	b, _ := table.Conn(ctx)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.BeginReadCommitted(ctx))
	require.NoError(t, a.Insert(ctx, domain.Record{ID: "r", Expiry: 10}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Insert(ctx, domain.Record{ID: "r", Expiry: 20, Data: []byte("b")})
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Rollback(ctx))

	require.NoError(t, <-errCh)
	rec, ok := table.Get("r")
	require.True(t, ok)
	assert.Equal(t, "b", string(rec.Data))
}

func TestMemoryConn_SelectForUpdateSerializes(t *testing.T) {
	table := memory.NewTable()
	table.Put(domain.Record{ID: "s", Expiry: 100, Data: []byte("0")})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var order []string

	holder, _ := table.Conn(ctx)
	defer holder.Close()
	require.NoError(t, holder.BeginReadCommitted(ctx))
	_, err := holder.Select(ctx, "s", true)
	require.NoError(t, err)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c, _ := table.Conn(ctx)
		defer c.Close()
		_ = c.BeginReadCommitted(ctx)
		rec, err := c.Select(ctx, "s", true)
		assert.NoError(t, err)
		mu.Lock()
		order = append(order, "waiter:"+string(rec.Data))
		mu.Unlock()
		_ = c.Commit(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, holder.Upsert(ctx, domain.Record{ID: "s", Expiry: 100, Data: []byte("1")}))
	mu.Lock()
	order = append(order, "holder")
	mu.Unlock()
	require.NoError(t, holder.Commit(ctx))
	wg.Wait()

	assert.Equal(t, []string{"holder", "waiter:1"}, order, "The waiter must observe the holder's committed write")
}

func TestMemoryConn_NamedLockReentrantAndReleasedOnClose(t *testing.T) {
	table := memory.NewTable()
	ctx := context.Background()
	a, _ := table.Conn(ctx)
	b, _ := table.Conn(ctx)
	defer b.Close()

	u1, err := a.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	u2, err := a.Lock(ctx, "k", time.Second)
	require.NoError(t, err, "Same connection may re-acquire its own lock")

	require.NoError(t, u1(ctx))
	_, err = b.Lock(ctx, "k", 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLockTimeout, "Lock is held until every acquisition is released")

	require.NoError(t, u2(ctx))
	assert.Error(t, u2(ctx), "Releasing twice must fail")

	_, err = a.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	ub, err := b.Lock(ctx, "k", 20*time.Millisecond)
	require.NoError(t, err, "Close releases held named locks")
	assert.NoError(t, ub(ctx))
}

func TestMemoryConn_LockHonoursContext(t *testing.T) {
	table := memory.NewTable()
	a, _ := table.Conn(context.Background())
	b, _ := table.Conn(context.Background())
	defer a.Close()
	defer b.Close()

	_, err := a.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx, "k", -1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
