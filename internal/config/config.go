// Package config loads the sqlsession YAML configuration.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/sqlsession/pkg/adapters/mysql"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// PasswordEnv overrides mysql.password when set.
const PasswordEnv = "SQLSESSION_MYSQL_PASSWORD"

// Lock backends for the advisory strategy.
const (
	BackendMySQL = "mysql"
	BackendRedis = "redis"
)

// Config is the full configuration tree.
type Config struct {
	MySQL   MySQL   `mapstructure:"mysql"`
	Table   Table   `mapstructure:"table"`
	Locking Locking `mapstructure:"locking"`
	Redis   Redis   `mapstructure:"redis"`
	Session Session `mapstructure:"session"`
	Log     Log     `mapstructure:"log"`
	Server  Server  `mapstructure:"server"`
}

// MySQL describes the server connection.
type MySQL struct {
	Addr         string            `mapstructure:"addr"`
	User         string            `mapstructure:"user"`
	Password     string            `mapstructure:"password"`
	Database     string            `mapstructure:"database"`
	Params       map[string]string `mapstructure:"params"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxOpenConns int               `mapstructure:"max_open_conns"`
}

// Table names the session table and its columns.
type Table struct {
	Name   string `mapstructure:"name"`
	ID     string `mapstructure:"id"`
	Expiry string `mapstructure:"expiry"`
	Data   string `mapstructure:"data"`
}

// Schema converts t to the adapter schema.
func (t Table) Schema() mysql.Schema {
	return mysql.Schema{Table: t.Name, IDColumn: t.ID, ExpiryColumn: t.Expiry, DataColumn: t.Data}
}

// Locking selects the concurrency strategy.
type Locking struct {
	Strategy string        `mapstructure:"strategy"`
	Wait     time.Duration `mapstructure:"wait"`
	Backend  string        `mapstructure:"backend"`
	Prefix   string        `mapstructure:"prefix"`
}

// Redis configures the optional lock backend.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Lease    time.Duration `mapstructure:"lease"`
}

// Session holds lifetime and collection settings.
type Session struct {
	MaxLifetime   time.Duration `mapstructure:"max_lifetime"`
	GCProbability int           `mapstructure:"gc_probability"`
	GCDivisor     int           `mapstructure:"gc_divisor"`
	// EncryptionKeys are base64 AES-256 keys. The first seals new payloads;
	// the rest only decrypt, for rotation.
	EncryptionKeys []string `mapstructure:"encryption_keys"`
}

// Keys decodes EncryptionKeys.
func (s Session) Keys() ([][]byte, error) {
	keys := make([][]byte, 0, len(s.EncryptionKeys))
	for i, k := range s.EncryptionKeys {
		raw, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("%w: encryption key %d: %w", domain.ErrInvalidConfig, i, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("%w: encryption key %d must decode to 32 bytes, got %d", domain.ErrInvalidConfig, i, len(raw))
		}
		keys = append(keys, raw)
	}
	return keys, nil
}

// Log configures the logger.
type Log struct {
	Level string `mapstructure:"level"`
}

// Server configures the demo HTTP host.
type Server struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	schema := mysql.DefaultSchema()
	return Config{
		MySQL: MySQL{
			Addr:         "127.0.0.1:3306",
			User:         "root",
			Database:     "sessions",
			Timeout:      5 * time.Second,
			MaxOpenConns: 64,
		},
		Table: Table{
			Name:   schema.Table,
			ID:     schema.IDColumn,
			Expiry: schema.ExpiryColumn,
			Data:   schema.DataColumn,
		},
		Locking: Locking{
			Strategy: domain.StrategyTransactional,
			Wait:     50 * time.Second,
			Backend:  BackendMySQL,
			Prefix:   mysql.DefaultLockPrefix,
		},
		Redis: Redis{
			Addr:  "127.0.0.1:6379",
			Lease: 2 * time.Minute,
		},
		Session: Session{
			MaxLifetime:   1440 * time.Second,
			GCProbability: 1,
			GCDivisor:     100,
		},
		Log:    Log{Level: "info"},
		Server: Server{Addr: ":8080", Metrics: true},
	}
}

// Load reads path over Default. An empty path returns the defaults.
// The password environment override applies either way.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := Decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if pw, ok := os.LookupEnv(PasswordEnv); ok {
		cfg.MySQL.Password = pw
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges a YAML document into cfg. Durations accept Go syntax ("50s").
func Decode(raw []byte, cfg *Config) error {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}
	if tree == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(tree)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Locking.Strategy {
	case domain.StrategyTransactional, domain.StrategyAdvisory:
	default:
		return fmt.Errorf("%w: unknown locking strategy %q", domain.ErrInvalidConfig, c.Locking.Strategy)
	}
	switch c.Locking.Backend {
	case BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown lock backend %q", domain.ErrInvalidConfig, c.Locking.Backend)
	}
	if c.Locking.Wait <= 0 {
		return fmt.Errorf("%w: locking.wait must be positive, got %s", domain.ErrInvalidConfig, c.Locking.Wait)
	}
	if c.Locking.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required for the redis lock backend", domain.ErrInvalidConfig)
	}
	if c.Session.MaxLifetime < time.Second {
		return fmt.Errorf("%w: session.max_lifetime must be at least 1s", domain.ErrInvalidConfig)
	}
	if c.Session.GCProbability < 0 || (c.Session.GCProbability > 0 && c.Session.GCDivisor <= 0) {
		return fmt.Errorf("%w: gc_probability %d/%d", domain.ErrInvalidConfig, c.Session.GCProbability, c.Session.GCDivisor)
	}
	if _, err := c.Session.Keys(); err != nil {
		return err
	}
	return c.Table.Schema().Validate()
}
