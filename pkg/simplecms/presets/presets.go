// Package presets builds services for common deployment shapes.
package presets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	"github.com/tendant/simple-cms/pkg/simplecms/logger"
	memoryrepo "github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/sqlite"
)

// NewDevelopment creates a service for local development.
//
// Features:
//   - SQLite database at ./dev-data/cms.db (persistent across restarts)
//   - Console logging at debug level
//   - Events logged instead of published
//
// The returned cleanup closes the database and removes the data directory.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simplecms.Service, func(), error) {
	cfg := &devConfig{
		dataDir: "./dev-data",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log := cfg.logger
	if log == nil {
		var err error
		if log, err = logger.New("debug", "console", "simple-cms-dev"); err != nil {
			return nil, nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	repo, err := sqlite.Open(context.Background(), filepath.Join(cfg.dataDir, "cms.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open development database: %w", err)
	}

	svc, err := simplecms.New(
		simplecms.WithRepository(repo),
		simplecms.WithEventSink(simplecms.NewLoggingEventSink(log)),
		simplecms.WithLogger(log),
	)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		repo.Close()
		os.RemoveAll(cfg.dataDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates a service for unit and integration tests.
//
// Features:
//   - In-memory repository, isolated per test
//   - Logs routed through t.Log
//   - No events unless WithTestEventSink is given
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t)
//	    // Use service in test...
//	}
func NewTesting(t *testing.T, opts ...TestingOption) simplecms.Service {
	t.Helper()
	cfg := &testConfig{
		sink:      simplecms.NewNoopEventSink(),
		orderBase: simplecms.DefaultOrderBase,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	svc, err := simplecms.New(
		simplecms.WithRepository(memoryrepo.New()),
		simplecms.WithEventSink(cfg.sink),
		simplecms.WithOrderBase(cfg.orderBase),
		simplecms.WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))),
	)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// NewProduction creates a service configured from the environment (see
// config.WithEnv). An in-memory database is rejected.
//
// The returned Runtime must be closed on shutdown.
func NewProduction(ctx context.Context, opts ...config.Option) (*config.Runtime, error) {
	cfg, err := config.Load(append([]config.Option{config.WithEnv()}, opts...)...)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseType == config.DatabaseMemory {
		return nil, fmt.Errorf("production preset requires a persistent DATABASE_URL (memory not allowed in production)")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "simple-cms")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg.BuildService(ctx, log)
}

// devConfig holds development preset configuration
type devConfig struct {
	dataDir string
	logger  *zap.Logger
}

// testConfig holds testing preset configuration
type testConfig struct {
	sink      simplecms.EventSink
	orderBase int
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevDataDir sets the development data directory
func WithDevDataDir(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.dataDir = dir
	}
}

// WithDevLogger replaces the development console logger
func WithDevLogger(l *zap.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logger = l
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestEventSink routes events to sink
func WithTestEventSink(sink simplecms.EventSink) TestingOption {
	return func(cfg *testConfig) {
		cfg.sink = sink
	}
}

// WithTestOrderBase sets the order of the first placement in a scope
func WithTestOrderBase(base int) TestingOption {
	return func(cfg *testConfig) {
		cfg.orderBase = base
	}
}
