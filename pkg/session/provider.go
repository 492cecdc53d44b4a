package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/expiry"
	"github.com/aretw0/sqlsession/pkg/ports"
)

// Provider builds one Store per request cycle from a Connector and drives
// complete cycles for hosts that do not bring their own lifecycle driver.
type Provider struct {
	connector ports.Connector
	cfg       settings
	policy    expiry.Policy
}

// NewProvider creates a Provider. Options apply to every Store it builds.
func NewProvider(connector ports.Connector, opts ...Option) (*Provider, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.locking == nil {
		return nil, fmt.Errorf("%w: locking strategy is required", domain.ErrInvalidConfig)
	}
	policy, err := expiry.New(cfg.maxLifetime, cfg.clock)
	if err != nil {
		return nil, err
	}
	return &Provider{connector: connector, cfg: cfg, policy: policy}, nil
}

// NewStore acquires a dedicated connection and wraps it in a Store.
func (p *Provider) NewStore(ctx context.Context) (*Store, error) {
	conn, err := p.connector.Conn(ctx)
	if err != nil {
		return nil, err
	}
	st, err := newStore(conn, p.cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return st, nil
}

// Run executes one full cycle for id: open, read, fn, write, close.
// fn receives the current payload and returns the payload to persist. When fn
// fails nothing is written and its error is returned. Close always runs and
// its error is joined to the result.
func (p *Provider) Run(ctx context.Context, id string, fn func(ctx context.Context, data []byte) ([]byte, error)) error {
	return p.cycle(ctx, func(st *Store) error {
		data, err := st.Read(ctx, id)
		if err != nil {
			return err
		}
		out, err := fn(ctx, data)
		if err != nil {
			return err
		}
		if err := st.Write(ctx, id, out); err != nil {
			return err
		}
		if p.shouldCollect() {
			return st.GC(ctx, p.maxLifetimeSeconds())
		}
		return nil
	})
}

// Destroy runs a cycle that deletes id.
func (p *Provider) Destroy(ctx context.Context, id string) error {
	return p.cycle(ctx, func(st *Store) error {
		return st.Destroy(ctx, id)
	})
}

// Collect runs a cycle whose only effect is a garbage collection sweep.
func (p *Provider) Collect(ctx context.Context) error {
	return p.cycle(ctx, func(st *Store) error {
		return st.GC(ctx, p.maxLifetimeSeconds())
	})
}

// Peek returns the live payload for id without entering a critical section
// or creating a placeholder. found is false for absent and expired sessions.
func (p *Provider) Peek(ctx context.Context, id string) (data []byte, found bool, err error) {
	conn, err := p.connector.Conn(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()

	rec, err := conn.Select(ctx, id, false)
	if err != nil {
		return nil, false, err
	}
	if rec == nil || p.policy.Expired(rec.Expiry) {
		return nil, false, nil
	}
	return rec.Data, true, nil
}

// Strategy returns the name of the locking strategy handed to each Store.
func (p *Provider) Strategy() string {
	return p.cfg.locking.Name()
}

func (p *Provider) cycle(ctx context.Context, body func(*Store) error) (err error) {
	st, err := p.NewStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.Close(ctx))
	}()

	if err := st.Open(ctx, "", ""); err != nil {
		return err
	}
	return body(st)
}

func (p *Provider) shouldCollect() bool {
	if p.cfg.gcProbability <= 0 || p.cfg.gcDivisor <= 0 {
		return false
	}
	return rand.Intn(p.cfg.gcDivisor) < p.cfg.gcProbability
}

func (p *Provider) maxLifetimeSeconds() int64 {
	return int64(p.cfg.maxLifetime / time.Second)
}
