package gc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/sqlsession/pkg/adapters/memory"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/gc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_SweepsOnlyExpired(t *testing.T) {
	table := memory.NewTable()
	table.Put(domain.Record{ID: "old", Expiry: 99})
	table.Put(domain.Record{ID: "edge", Expiry: 100})
	table.Put(domain.Record{ID: "new", Expiry: 500})

	conn, err := table.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	var swept *domain.SweepEvent
	c := gc.New(gc.WithHooks(domain.LifecycleHooks{
		OnSweep: func(_ context.Context, e *domain.SweepEvent) { swept = e },
	}))

	require.NoError(t, c.Sweep(context.Background(), conn, time.Unix(100, 0)))

	assert.Equal(t, []string{"edge", "new"}, table.IDs())
	require.NotNil(t, swept)
	assert.Equal(t, int64(1), swept.Deleted)
	assert.NoError(t, swept.Err)
}

type failingDeleter struct{ err error }

func (f failingDeleter) DeleteExpired(context.Context, int64) (int64, error) {
	return 0, f.err
}

func TestCollector_PropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	var swept *domain.SweepEvent
	c := gc.New(gc.WithHooks(domain.LifecycleHooks{
		OnSweep: func(_ context.Context, e *domain.SweepEvent) { swept = e },
	}))

	err := c.Sweep(context.Background(), failingDeleter{err: boom}, time.Now())
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, swept)
	assert.ErrorIs(t, swept.Err, boom)
}
