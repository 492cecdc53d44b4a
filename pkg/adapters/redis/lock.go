// Package redis provides a Redis-backed advisory lock for the advisory locking
// strategy, for deployments that keep lock traffic off the MySQL server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces lock keys.
	DefaultPrefix = "sqlsession:lock:"
	// DefaultLease bounds how long a crashed holder can block others.
	DefaultLease = 2 * time.Minute
	// DefaultRetryInterval is the polling interval while waiting.
	DefaultRetryInterval = 50 * time.Millisecond
)

// ErrLockLost is returned by an unlock func when the key expired or was taken
// over before release.
var ErrLockLost = errors.New("redis: lock no longer held")

var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements ports.NamedLocker with SET NX PX and a token-checked
// release.
type Locker struct {
	client backend.UniversalClient
	prefix string
	lease  time.Duration
	retry  time.Duration
}

// Option configures the Locker.
type Option func(*Locker)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLease sets the key TTL.
func WithLease(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.lease = d
		}
	}
}

// WithRetryInterval sets the polling interval.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// NewLocker creates a new Redis locker.
func NewLocker(client backend.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: DefaultPrefix,
		lease:  DefaultLease,
		retry:  DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the named lock, polling until wait elapses. A negative wait
// polls until ctx is done. Exhausting wait yields domain.ErrLockTimeout;
// cancellation of ctx yields ctx.Err().
// Every call is a distinct owner, so a second Lock of a held name blocks; use
// Owner for reentrant locking within one cycle.
func (l *Locker) Lock(ctx context.Context, name string, wait time.Duration) (ports.UnlockFunc, error) {
	key := l.prefix + name
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, wait); err != nil {
		return nil, err
	}
	return l.unlocker(key, token), nil
}

// Owner implements ports.ScopedLocker. The returned locker holds one token,
// so repeated locks of the same name through it are reentrant and the key is
// deleted when the last acquisition is released. It is not safe for
// concurrent use.
func (l *Locker) Owner() ports.NamedLocker {
	return &owner{locker: l, token: uuid.NewString(), held: make(map[string]int)}
}

func (l *Locker) acquire(ctx context.Context, key, token string, wait time.Duration) error {
	var deadline <-chan time.Time
	if wait >= 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("redis: acquire lock %q: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("redis: lock %q after %s: %w", key, wait, domain.ErrLockTimeout)
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(key, token string) ports.UnlockFunc {
	return func(ctx context.Context) error {
		return l.release(ctx, key, token)
	}
}

func (l *Locker) release(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("redis: release lock %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrLockLost, key)
	}
	return nil
}

// owner counts acquisitions per name under a single token.
type owner struct {
	locker *Locker
	token  string
	held   map[string]int
}

func (o *owner) Lock(ctx context.Context, name string, wait time.Duration) (ports.UnlockFunc, error) {
	key := o.locker.prefix + name
	if o.held[key] == 0 {
		if err := o.locker.acquire(ctx, key, o.token, wait); err != nil {
			return nil, err
		}
	}
	o.held[key]++

	released := false
	return func(ctx context.Context) error {
		if released {
			return fmt.Errorf("redis: lock %q already released", key)
		}
		released = true
		o.held[key]--
		if o.held[key] > 0 {
			return nil
		}
		delete(o.held, key)
		return o.locker.release(ctx, key, o.token)
	}, nil
}
