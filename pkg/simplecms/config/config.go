// Package config assembles a simplecms.Service and its backing
// infrastructure from programmatic options and environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/eventsink/redisstream"
	memorylock "github.com/tendant/simple-cms/pkg/simplecms/lock/memory"
	redislock "github.com/tendant/simple-cms/pkg/simplecms/lock/redis"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	repopg "github.com/tendant/simple-cms/pkg/simplecms/repo/postgres"
	reposqlite "github.com/tendant/simple-cms/pkg/simplecms/repo/sqlite"
)

// Database, lock and event sink backends.
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"

	LockMemory = "memory"
	LockRedis  = "redis"

	EventSinkNoop  = "noop"
	EventSinkLog   = "log"
	EventSinkRedis = "redis"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:             "8080",
		Environment:      "development",
		DatabaseType:     DatabaseMemory,
		AutoMigrate:      true,
		LockBackend:      LockMemory,
		EventSink:        EventSinkLog,
		EventStream:      redisstream.DefaultStream,
		OrderBase:        simplecms.DefaultOrderBase,
		MaxInsertRetries: simplecms.DefaultMaxInsertRetries,
		TxTimeout:        simplecms.DefaultTxTimeout,
		RateLimitBurst:   20,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// ServerConfig represents configuration for the simple-cms server.
// Fields tagged with env are read by WithEnv.
type ServerConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"` // development, production, testing

	// Database configuration. DatabaseType and SQLitePath are derived from
	// DatabaseURL by WithEnv, or set directly by WithDatabase.
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseType string // "memory", "postgres", "sqlite"
	SQLitePath   string
	DBSchema     string `env:"DB_SCHEMA"` // Postgres search_path
	AutoMigrate  bool   `env:"AUTO_MIGRATE"`

	// Placement serialisation
	LockBackend string `env:"LOCK_BACKEND"` // "memory", "redis"
	RedisURL    string `env:"REDIS_URL"`

	// Post-commit notifications
	EventSink   string `env:"EVENT_SINK"` // "noop", "log", "redis"
	EventStream string `env:"EVENT_STREAM"`

	// Composition
	OrderBase        int           `env:"ORDER_BASE"`
	MaxInsertRetries int           `env:"MAX_INSERT_RETRIES"`
	TxTimeout        time.Duration `env:"TX_TIMEOUT"`

	// HTTP rate limiting per client. Zero RateLimitRPS disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case DatabaseSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required when using sqlite")
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'sqlite', got %q", c.DatabaseType)
	}

	switch c.LockBackend {
	case LockMemory:
	case LockRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required when using the redis lock backend")
		}
	default:
		return fmt.Errorf("lock_backend must be 'memory' or 'redis', got %q", c.LockBackend)
	}

	switch c.EventSink {
	case EventSinkNoop, EventSinkLog:
	case EventSinkRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required when using the redis event sink")
		}
		if c.EventStream == "" {
			return errors.New("event_stream is required when using the redis event sink")
		}
	default:
		return fmt.Errorf("event_sink must be 'noop', 'log' or 'redis', got %q", c.EventSink)
	}

	if c.MaxInsertRetries < 0 {
		return fmt.Errorf("max_insert_retries must not be negative, got %d", c.MaxInsertRetries)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must not be negative, got %g", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate_limit_burst must be positive when rate limiting, got %d", c.RateLimitBurst)
	}
	if c.TxTimeout < 0 {
		return fmt.Errorf("tx_timeout must not be negative, got %s", c.TxTimeout)
	}
	return nil
}

// Runtime is a built service together with the resources it holds.
type Runtime struct {
	Service simplecms.Service

	closers []func() error
}

// Close releases database pools and Redis clients opened by BuildService.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService creates a Service instance from the server configuration.
// The returned Runtime must be closed when the service is no longer used.
func (c *ServerConfig) BuildService(ctx context.Context, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	options := []simplecms.Option{
		simplecms.WithLogger(logger),
		simplecms.WithOrderBase(c.OrderBase),
		simplecms.WithMaxInsertRetries(c.MaxInsertRetries),
		simplecms.WithTxTimeout(c.TxTimeout),
	}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		return fail(fmt.Errorf("failed to build repository: %w", err))
	}
	options = append(options, simplecms.WithRepository(repo))

	var redisClient redis.UniversalClient
	if c.LockBackend == LockRedis || c.EventSink == EventSinkRedis {
		redisClient, err = c.buildRedisClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		rt.closers = append(rt.closers, redisClient.Close)
	}

	switch c.LockBackend {
	case LockRedis:
		options = append(options, simplecms.WithLocker(redislock.New(redisClient,
			redislock.WithTTL(redislock.LeaseFor(c.MaxInsertRetries+1, c.TxTimeout)),
			redislock.WithLogger(logger))))
	default:
		options = append(options, simplecms.WithLocker(memorylock.New()))
	}

	switch c.EventSink {
	case EventSinkRedis:
		options = append(options, simplecms.WithEventSink(simplecms.NewEventBus(
			simplecms.NewLoggingEventSink(logger),
			redisstream.New(redisClient, redisstream.WithStream(c.EventStream)),
		)))
	case EventSinkLog:
		options = append(options, simplecms.WithEventSink(simplecms.NewLoggingEventSink(logger)))
	default:
		options = append(options, simplecms.WithEventSink(simplecms.NewNoopEventSink()))
	}

	svc, err := simplecms.New(options...)
	if err != nil {
		return fail(err)
	}
	rt.Service = svc
	return rt, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (simplecms.Repository, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), nil
	case DatabasePostgres:
		pool, err := c.newPostgresPool(ctx)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		if c.AutoMigrate {
			if err := repopg.Migrate(ctx, pool); err != nil {
				return nil, fmt.Errorf("failed to migrate postgres: %w", err)
			}
		}
		return repopg.NewWithPool(pool), nil
	case DatabaseSQLite:
		if !c.AutoMigrate {
			db, err := reposqlite.OpenDB(ctx, c.SQLitePath)
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, db.Close)
			return reposqlite.New(db), nil
		}
		repo, err := reposqlite.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, repo.Close)
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) newPostgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

func (c *ServerConfig) buildRedisClient(ctx context.Context) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
