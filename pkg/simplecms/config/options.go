package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend. For sqlite, url is the
// database file path.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
			c.DatabaseURL = ""
		case DatabasePostgres:
			if url == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
			c.DatabaseURL = url
		case DatabaseSQLite:
			if url == "" {
				return fmt.Errorf("database path is required for sqlite")
			}
			c.DatabaseURL = "sqlite://" + url
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		return c.applyDatabaseURL()
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate enables or disables applying migrations on build
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithRedisLock serialises placement inserts through Redis at url
func WithRedisLock(url string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.LockBackend = LockRedis
		c.RedisURL = url
		return nil
	}
}

// WithEventSink selects the event sink ("noop", "log" or "redis")
func WithEventSink(sink string) Option {
	return func(c *ServerConfig) error {
		c.EventSink = sink
		return nil
	}
}

// WithRedisEvents publishes events to stream on the Redis server at url
func WithRedisEvents(url, stream string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.EventSink = EventSinkRedis
		c.RedisURL = url
		if stream != "" {
			c.EventStream = stream
		}
		return nil
	}
}

// WithOrderBase sets the order of the first placement in a scope
func WithOrderBase(base int) Option {
	return func(c *ServerConfig) error {
		c.OrderBase = base
		return nil
	}
}

// WithMaxInsertRetries bounds retries of conflicting placement inserts
func WithMaxInsertRetries(n int) Option {
	return func(c *ServerConfig) error {
		if n < 0 {
			return fmt.Errorf("max insert retries must not be negative, got: %d", n)
		}
		c.MaxInsertRetries = n
		return nil
	}
}

// WithTxTimeout bounds each unit of work
func WithTxTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.TxTimeout = d
		return nil
	}
}

// WithLogging sets the log level and format
func WithLogging(level, format string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		c.LogFormat = format
		return nil
	}
}

// WithRateLimit limits HTTP requests per client. rps of zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ServerConfig) error {
		if rps < 0 {
			return fmt.Errorf("rate limit must not be negative, got: %g", rps)
		}
		c.RateLimitRPS = rps
		c.RateLimitBurst = burst
		return nil
	}
}
