package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/sqlsession/internal/config"
	"github.com/aretw0/sqlsession/pkg/adapters/mysql"
	redisadapter "github.com/aretw0/sqlsession/pkg/adapters/redis"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/observability"
	"github.com/aretw0/sqlsession/pkg/persistence/middleware"
	"github.com/aretw0/sqlsession/pkg/ports"
	"github.com/aretw0/sqlsession/pkg/session"
	driver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Runtime bundles a configured Provider with the resources it owns.
type Runtime struct {
	Provider  *session.Provider
	Connector *mysql.Connector
	Registry  *prometheus.Registry

	closers []func() error
}

// Close releases the pool and any lock backend client.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// DriverConfig maps the mysql section to a driver config.
func DriverConfig(c config.MySQL) *driver.Config {
	dc := driver.NewConfig()
	dc.Net = "tcp"
	dc.Addr = c.Addr
	dc.User = c.User
	dc.Passwd = c.Password
	dc.DBName = c.Database
	dc.Timeout = c.Timeout
	if len(c.Params) > 0 {
		dc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			dc.Params[k] = v
		}
	}
	return dc
}

// Build wires a Runtime from cfg. The pool connects lazily, so Build does
// not require a reachable server.
func Build(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := mysql.Open(DriverConfig(cfg.MySQL))
	if err != nil {
		return nil, err
	}
	if cfg.MySQL.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	}
	rt := &Runtime{Registry: prometheus.NewRegistry()}
	rt.closers = append(rt.closers, db.Close)

	connector, err := mysql.NewConnector(db,
		mysql.WithSchema(cfg.Table.Schema()),
		mysql.WithLockPrefix(cfg.Locking.Prefix),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Connector = connector

	var wrapped ports.Connector = connector
	keys, err := cfg.Session.Keys()
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if len(keys) > 0 {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: keys[0], FallbackKeys: keys[1:]})
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		wrapped = middleware.Chain(connector, mw)
		logger.Debug("Session payload encryption enabled", "keys", len(keys))
	}

	provider, err := newProvider(rt, wrapped, cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Provider = provider
	return rt, nil
}

func newProvider(rt *Runtime, connector ports.Connector, cfg config.Config, logger *slog.Logger) (*session.Provider, error) {
	metrics, err := observability.NewMetrics(rt.Registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	locking, err := newLocking(rt, cfg, logger)
	if err != nil {
		return nil, err
	}

	return session.NewProvider(connector,
		session.WithLocking(locking),
		session.WithMaxLifetime(cfg.Session.MaxLifetime),
		session.WithGCProbability(cfg.Session.GCProbability, cfg.Session.GCDivisor),
		session.WithLogger(logger),
		session.WithHooks(observability.Combine(metrics.Hooks(), observability.LogHooks(logger))),
	)
}

func newLocking(rt *Runtime, cfg config.Config, logger *slog.Logger) (session.Locking, error) {
	switch cfg.Locking.Strategy {
	case domain.StrategyTransactional:
		return session.Transactional(), nil
	case domain.StrategyAdvisory:
	default:
		return nil, fmt.Errorf("%w: unknown locking strategy %q", domain.ErrInvalidConfig, cfg.Locking.Strategy)
	}

	opts := []session.AdvisoryOption{session.WithLockWait(cfg.Locking.Wait)}
	if cfg.Locking.Backend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)
		opts = append(opts, session.WithNamedLocker(redisadapter.NewLocker(client,
			redisadapter.WithPrefix(cfg.Locking.Prefix),
			redisadapter.WithLease(cfg.Redis.Lease),
		)))
		logger.Debug("Advisory locks backed by redis", "addr", cfg.Redis.Addr)
	}
	return session.Advisory(opts...), nil
}
