// Package expiry computes and checks session expiry timestamps.
package expiry

import (
	"fmt"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
)

// DefaultMaxLifetime matches the usual host default of 1440 seconds.
const DefaultMaxLifetime = 1440 * time.Second

// Clock abstracts the wall clock so tests can control time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Policy holds the configured max lifetime and the clock used to evaluate it.
// Timestamps are whole Unix seconds, matching the persisted expiry column.
type Policy struct {
	maxLifetime time.Duration
	clock       Clock
}

// New creates a Policy. A nil clock means SystemClock.
func New(maxLifetime time.Duration, clock Clock) (Policy, error) {
	if maxLifetime < time.Second {
		return Policy{}, fmt.Errorf("%w: max lifetime must be at least 1s, got %s", domain.ErrInvalidConfig, maxLifetime)
	}
	if clock == nil {
		clock = SystemClock
	}
	return Policy{maxLifetime: maxLifetime, clock: clock}, nil
}

// MaxLifetime returns the configured lifetime.
func (p Policy) MaxLifetime() time.Duration {
	return p.maxLifetime
}

// Clock returns the clock the policy evaluates against.
func (p Policy) Clock() Clock {
	return p.clock
}

// Now returns the current Unix time in seconds.
func (p Policy) Now() int64 {
	return p.clock.Now().Unix()
}

// Deadline returns the expiry for a record written now.
func (p Policy) Deadline() int64 {
	return p.Now() + int64(p.maxLifetime/time.Second)
}

// Expired reports whether a record with the given expiry is past its validity window.
func (p Policy) Expired(expiry int64) bool {
	return p.Now() > expiry
}
