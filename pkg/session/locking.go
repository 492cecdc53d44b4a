package session

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
)

// DefaultLockWait is the advisory lock wait budget.
const DefaultLockWait = 50 * time.Second

// Locking is a strategy for serializing critical sections on one session id.
// The two implementations are Transactional and Advisory; the choice is fixed
// for the lifetime of a Store.
type Locking interface {
	// Name returns domain.StrategyTransactional or domain.StrategyAdvisory.
	Name() string

	enter(ctx context.Context, s *Store, id string) error
	lockingRead() bool
	missing(ctx context.Context, s *Store, id string) ([]byte, domain.ReadOutcome, error)
}

type transactional struct{}

// Transactional serializes on the session row itself: a READ COMMITTED
// transaction with SELECT ... FOR UPDATE, committed at Close. A missing row is
// claimed with a placeholder insert so that the next reader blocks on it.
func Transactional() Locking {
	return transactional{}
}

func (transactional) Name() string { return domain.StrategyTransactional }

func (transactional) lockingRead() bool { return true }

// enter reuses a transaction already opened by an earlier read in this cycle.
func (transactional) enter(ctx context.Context, s *Store, id string) error {
	if s.conn.InTx() {
		return nil
	}
	return s.conn.BeginReadCommitted(ctx)
}

func (transactional) missing(ctx context.Context, s *Store, id string) ([]byte, domain.ReadOutcome, error) {
	placeholder := domain.Record{ID: id, Expiry: s.policy.Deadline(), Data: []byte{}}
	err := s.conn.Insert(ctx, placeholder)
	if err == nil {
		return []byte{}, domain.ReadMiss, nil
	}
	if !errors.Is(err, domain.ErrDuplicateKey) {
		return nil, "", s.abort(ctx, err)
	}

	// Another cycle inserted the row first; our insert waited for its commit.
	s.logger.Debug("Lost first-insert race, re-reading session", "session_id", id)
	rec, err := s.conn.Select(ctx, id, true)
	if err != nil {
		return nil, "", s.abort(ctx, err)
	}
	if rec == nil || s.policy.Expired(rec.Expiry) {
		return []byte{}, domain.ReadRecovered, nil
	}
	return rec.Data, domain.ReadRecovered, nil
}

type advisory struct {
	wait   time.Duration
	locker ports.NamedLocker
}

// AdvisoryOption configures the Advisory strategy.
type AdvisoryOption func(*advisory)

// WithLockWait sets how long a read waits for the named lock before failing
// with domain.ErrLockTimeout. Defaults to DefaultLockWait.
func WithLockWait(d time.Duration) AdvisoryOption {
	return func(a *advisory) {
		a.wait = d
	}
}

// WithNamedLocker uses an external lock service instead of the connection's
// own named locks.
func WithNamedLocker(l ports.NamedLocker) AdvisoryOption {
	return func(a *advisory) {
		a.locker = l
	}
}

// Advisory serializes on a named lock keyed by the session id. No transaction
// is started and no placeholder row is written; Write relies on upsert.
// Every acquired lock is released at Close in acquisition order.
func Advisory(opts ...AdvisoryOption) Locking {
	a := advisory{wait: DefaultLockWait}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (advisory) Name() string { return domain.StrategyAdvisory }

func (advisory) lockingRead() bool { return false }

func (a advisory) enter(ctx context.Context, s *Store, id string) error {
	var locker ports.NamedLocker = s.conn
	if a.locker != nil {
		locker = a.locker
		if scoped, ok := a.locker.(ports.ScopedLocker); ok {
			// One owner per cycle keeps repeated reads of an id reentrant.
			if s.owner == nil {
				s.owner = scoped.Owner()
			}
			locker = s.owner
		}
	}
	unlock, err := locker.Lock(ctx, id, a.wait)
	if err != nil {
		return err
	}
	s.unlocks = append(s.unlocks, pendingUnlock{id: id, release: unlock})
	s.logger.Debug("Acquired advisory lock", "session_id", id, "held", len(s.unlocks))
	return nil
}

func (advisory) missing(context.Context, *Store, string) ([]byte, domain.ReadOutcome, error) {
	return []byte{}, domain.ReadMiss, nil
}
