// Package gc deletes logically expired session records in bulk.
package gc

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/sqlsession/internal/logging"
	"github.com/aretw0/sqlsession/pkg/domain"
)

// Deleter is the slice of ports.Conn the collector needs.
type Deleter interface {
	DeleteExpired(ctx context.Context, before int64) (int64, error)
}

// Collector sweeps rows whose expiry is strictly in the past.
// It only touches rows already outside their validity window, so it never
// races with a live read or write of a non-expired session.
type Collector struct {
	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

// Option configures the Collector.
type Option func(*Collector)

// WithLogger configures a logger for the Collector.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHooks registers lifecycle hooks; only OnSweep is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Collector) {
		c.hooks = hooks
	}
}

// New creates a Collector.
func New(opts ...Option) *Collector {
	c := &Collector{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sweep deletes every record with expiry < now through d.
func (c *Collector) Sweep(ctx context.Context, d Deleter, now time.Time) error {
	start := time.Now()
	deleted, err := d.DeleteExpired(ctx, now.Unix())

	if c.hooks.OnSweep != nil {
		c.hooks.OnSweep(ctx, &domain.SweepEvent{
			EventBase: domain.EventBase{Timestamp: now, Type: domain.EventSweep},
			Deleted:   deleted,
			Err:       err,
		})
	}
	if err != nil {
		return err
	}

	c.logger.Debug("Swept expired sessions",
		"deleted", deleted,
		"before", now.Unix(),
		"took", time.Since(start),
	)
	return nil
}
