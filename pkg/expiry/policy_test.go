package expiry_test

import (
	"testing"
	"time"

	"github.com/aretw0/sqlsession/internal/testutils"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/expiry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Deadline(t *testing.T) {
	clock := testutils.NewFakeClock(time.Unix(1_000, 0))
	p, err := expiry.New(90*time.Second, clock)
	require.NoError(t, err)

	assert.Equal(t, int64(1_000), p.Now())
	assert.Equal(t, int64(1_090), p.Deadline())

	clock.Advance(10 * time.Second)
	assert.Equal(t, int64(1_100), p.Deadline(), "Deadline is recomputed from the current time")
}

func TestPolicy_Expired(t *testing.T) {
	clock := testutils.NewFakeClock(time.Unix(500, 0))
	p, err := expiry.New(time.Minute, clock)
	require.NoError(t, err)

	assert.False(t, p.Expired(501))
	assert.False(t, p.Expired(500), "expiry == now is still valid")
	assert.True(t, p.Expired(499))
}

func TestPolicy_InvalidLifetime(t *testing.T) {
	_, err := expiry.New(0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = expiry.New(500*time.Millisecond, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestPolicy_DefaultsToSystemClock(t *testing.T) {
	p, err := expiry.New(expiry.DefaultMaxLifetime, nil)
	require.NoError(t, err)

	assert.InDelta(t, time.Now().Unix(), p.Now(), 1)
	assert.Equal(t, expiry.DefaultMaxLifetime, p.MaxLifetime())
}
