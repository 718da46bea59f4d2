package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides. Unset variables keep the
// current value.
//
// Server:
//   PORT - Server port (default: "8080")
//   ENVIRONMENT - Runtime environment (default: "development")
//
// Database:
//   DATABASE_URL - "memory" (default), "postgres://..." / "postgresql://..."
//                  or "sqlite:///path/to/cms.db"
//   DB_SCHEMA - Postgres search_path
//   AUTO_MIGRATE - Apply embedded migrations on start (default: true)
//
// Placement:
//   LOCK_BACKEND - "memory" (default) or "redis"
//   REDIS_URL - "redis://host:6379/0"
//   ORDER_BASE, MAX_INSERT_RETRIES, TX_TIMEOUT (e.g. "30s")
//
// Events:
//   EVENT_SINK - "noop", "log" (default) or "redis"
//   EVENT_STREAM - Redis stream name (default: "simplecms:events")
//
// Logging:
//   LOG_LEVEL - debug, info, warn, error
//   LOG_FORMAT - json or console
//
// HTTP:
//   RATE_LIMIT_RPS - Requests per second per client, 0 disables (default: 0)
//   RATE_LIMIT_BURST - Burst size (default: 20)
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("reading environment: %w", err)
		}
		return c.applyDatabaseURL()
	}
}

// WithDatabaseURL selects the database from a DATABASE_URL style value.
func WithDatabaseURL(url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = url
		return c.applyDatabaseURL()
	}
}

// applyDatabaseURL derives the database type from DatabaseURL.
func (c *ServerConfig) applyDatabaseURL() error {
	dbURL := c.DatabaseURL
	switch {
	case dbURL == "" || dbURL == DatabaseMemory:
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
		c.SQLitePath = ""
	case strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = DatabasePostgres
		c.SQLitePath = ""
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = DatabaseSQLite
		c.SQLitePath = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'sqlite://...')", dbURL)
	}
	return nil
}
