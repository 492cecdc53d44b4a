package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/expiry"
	"github.com/aretw0/sqlsession/pkg/gc"
	"github.com/aretw0/sqlsession/pkg/ports"
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateOpen
	stateClosed
)

// ReleaseTimeout bounds advisory lock release at Close. Release runs detached
// from the caller's cancellation.
const ReleaseTimeout = 5 * time.Second

// pendingUnlock is an advisory lock acquired during the cycle and released at Close.
type pendingUnlock struct {
	id      string
	release ports.UnlockFunc
}

// Store is the session handler for one request cycle.
// It owns a single connection from construction until Close and is not safe
// for concurrent use; build one Store per cycle.
type Store struct {
	conn      ports.Conn
	locking   Locking
	policy    expiry.Policy
	collector *gc.Collector
	logger    *slog.Logger
	hooks     domain.LifecycleHooks

	state          lifecycle
	unlocks        []pendingUnlock
	owner          ports.NamedLocker
	collectGarbage bool
}

var _ ports.Handler = (*Store)(nil)

// NewStore creates a Store over conn. The Store takes ownership of conn and
// closes it at Close.
func NewStore(conn ports.Conn, opts ...Option) (*Store, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newStore(conn, cfg)
}

func newStore(conn ports.Conn, cfg settings) (*Store, error) {
	if cfg.locking == nil {
		return nil, fmt.Errorf("%w: locking strategy is required", domain.ErrInvalidConfig)
	}
	policy, err := expiry.New(cfg.maxLifetime, cfg.clock)
	if err != nil {
		return nil, err
	}
	return &Store{
		conn:    conn,
		locking: cfg.locking,
		policy:  policy,
		collector: gc.New(
			gc.WithLogger(cfg.logger),
			gc.WithHooks(cfg.hooks),
		),
		logger: cfg.logger,
		hooks:  cfg.hooks,
	}, nil
}

// Open implements ports.Handler. It never touches the connection.
func (s *Store) Open(ctx context.Context, savePath, name string) error {
	if s.state == stateClosed {
		return domain.ErrClosed
	}
	s.state = stateOpen
	return nil
}

// Read implements ports.Handler.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	rec, err := s.enter(ctx, id)
	s.emitLock(ctx, id, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if rec != nil {
		if s.policy.Expired(rec.Expiry) {
			// Left in place for the collector.
			s.emitRead(ctx, id, domain.ReadExpired, 0)
			return []byte{}, nil
		}
		s.emitRead(ctx, id, domain.ReadHit, len(rec.Data))
		return rec.Data, nil
	}

	data, outcome, err := s.locking.missing(ctx, s, id)
	if err != nil {
		return nil, err
	}
	s.emitRead(ctx, id, outcome, len(data))
	return data, nil
}

// enter opens the critical section for id and performs the initial read.
func (s *Store) enter(ctx context.Context, id string) (*domain.Record, error) {
	if err := s.locking.enter(ctx, s, id); err != nil {
		return nil, s.abort(ctx, err)
	}
	rec, err := s.conn.Select(ctx, id, s.locking.lockingRead())
	if err != nil {
		return nil, s.abort(ctx, err)
	}
	return rec, nil
}

// Write implements ports.Handler. Expiry is computed from the current time.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}

	rec := domain.Record{ID: id, Expiry: s.policy.Deadline(), Data: data}
	if err := s.conn.Upsert(ctx, rec); err != nil {
		return s.abort(ctx, err)
	}

	if s.hooks.OnWrite != nil {
		s.hooks.OnWrite(ctx, &domain.WriteEvent{
			EventBase: s.event(domain.EventWrite, id),
			Bytes:     len(data),
			Expiry:    rec.Expiry,
		})
	}
	return nil
}

// Close implements ports.Handler.
// It commits an open transaction, releases advisory locks in acquisition
// order, runs a pending sweep and returns the connection. Every step runs even
// if an earlier one failed; the failures are joined.
func (s *Store) Close(ctx context.Context) error {
	if s.state == stateClosed {
		return domain.ErrClosed
	}
	s.state = stateClosed

	var errs []error
	if s.conn.InTx() {
		if err := s.conn.Commit(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// Locks must be released even when the caller's ctx is already done.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReleaseTimeout)
	errs = append(errs, s.releaseLocks(releaseCtx)...)
	cancel()

	if s.collectGarbage {
		s.collectGarbage = false
		if err := s.collector.Sweep(ctx, s.conn, s.policy.Clock().Now()); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// releaseLocks drains pending advisory locks in FIFO order.
func (s *Store) releaseLocks(ctx context.Context) []error {
	var errs []error
	for len(s.unlocks) > 0 {
		next := s.unlocks[0]
		s.unlocks = s.unlocks[1:]
		if err := next.release(ctx); err != nil {
			s.logger.Warn("Failed to release advisory lock",
				"session_id", next.id,
				"err", err,
			)
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("Released advisory lock", "session_id", next.id)
	}
	s.unlocks = nil
	return errs
}

// Destroy implements ports.Handler.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.conn.Delete(ctx, id); err != nil {
		return s.abort(ctx, err)
	}
	if s.hooks.OnDestroy != nil {
		s.hooks.OnDestroy(ctx, &domain.DestroyEvent{EventBase: s.event(domain.EventDestroy, id)})
	}
	return nil
}

// GC implements ports.Handler. The sweep itself is deferred to Close and
// deletes by stored expiry; maxLifetime is only logged.
func (s *Store) GC(ctx context.Context, maxLifetime int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.collectGarbage = true
	s.logger.Debug("Garbage collection scheduled for close", "max_lifetime", maxLifetime)
	return nil
}

// Strategy returns the name of the active locking strategy.
func (s *Store) Strategy() string {
	return s.locking.Name()
}

func (s *Store) ready() error {
	switch s.state {
	case stateNew:
		return domain.ErrNotOpen
	case stateClosed:
		return domain.ErrClosed
	}
	return nil
}

// abort rolls back an open transaction so no row lock outlives a failure,
// then hands err back unchanged.
func (s *Store) abort(ctx context.Context, err error) error {
	if s.conn.InTx() {
		if rbErr := s.conn.Rollback(ctx); rbErr != nil {
			s.logger.Warn("Failed to roll back session transaction", "err", rbErr)
		}
	}
	return err
}

func (s *Store) event(t domain.EventType, id string) domain.EventBase {
	return domain.EventBase{
		Timestamp: s.policy.Clock().Now(),
		Type:      t,
		SessionID: id,
		Strategy:  s.locking.Name(),
	}
}

func (s *Store) emitRead(ctx context.Context, id string, outcome domain.ReadOutcome, n int) {
	if s.hooks.OnRead != nil {
		s.hooks.OnRead(ctx, &domain.ReadEvent{EventBase: s.event(domain.EventRead, id), Outcome: outcome, Bytes: n})
	}
}

func (s *Store) emitLock(ctx context.Context, id string, wait time.Duration, err error) {
	if s.hooks.OnLock != nil {
		s.hooks.OnLock(ctx, &domain.LockEvent{EventBase: s.event(domain.EventLock, id), Wait: wait, Err: err})
	}
}
