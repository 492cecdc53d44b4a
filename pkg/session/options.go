package session

import (
	"log/slog"
	"time"

	"github.com/aretw0/sqlsession/internal/logging"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/expiry"
)

// settings is shared by Store and Provider.
type settings struct {
	locking     Locking
	maxLifetime time.Duration
	clock       expiry.Clock
	logger      *slog.Logger
	hooks       domain.LifecycleHooks

	gcProbability int
	gcDivisor     int
}

func defaultSettings() settings {
	return settings{
		locking:       Transactional(),
		maxLifetime:   expiry.DefaultMaxLifetime,
		clock:         expiry.SystemClock,
		logger:        logging.NewNop(),
		gcProbability: 1,
		gcDivisor:     100,
	}
}

// Option configures a Store or a Provider.
type Option func(*settings)

// WithLocking selects the locking strategy. Defaults to Transactional.
func WithLocking(l Locking) Option {
	return func(s *settings) {
		s.locking = l
	}
}

// WithMaxLifetime sets the lifetime used to compute expiry on every write
// and placeholder insert. Defaults to expiry.DefaultMaxLifetime.
func WithMaxLifetime(d time.Duration) Option {
	return func(s *settings) {
		s.maxLifetime = d
	}
}

// WithClock overrides the wall clock.
func WithClock(c expiry.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithLogger configures a logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.hooks = hooks
	}
}

// WithGCProbability sets the chance (probability/divisor) that Provider.Run
// raises the garbage collection flag before closing a cycle.
// A probability of 0 disables it. Defaults to 1/100.
func WithGCProbability(probability, divisor int) Option {
	return func(s *settings) {
		s.gcProbability = probability
		s.gcDivisor = divisor
	}
}
