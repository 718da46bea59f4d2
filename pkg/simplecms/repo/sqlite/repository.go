// Package sqlite implements simplecms.Repository on an embedded SQLite
// database using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/sqlite/migrations"
)

const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

// Repository implements simplecms.Repository using SQLite
type Repository struct {
	queries
	db *sql.DB
}

// New wraps an open database. The schema is expected to be migrated.
func New(db *sql.DB) *Repository {
	return &Repository{queries: queries{db: db}, db: db}
}

// Open opens (or creates) the database file at path and applies migrations.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// OpenDB opens the database file at path with foreign keys enforced, WAL
// journaling and immediate write transactions.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + dsnPragmas
	} else {
		dsn += "?" + dsnPragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY
	// between transactions of the same process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}
	return db, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

var _ simplecms.Repository = (*Repository)(nil)

// Begin opens a transaction backed unit of work.
func (r *Repository) Begin(ctx context.Context) (simplecms.UnitOfWork, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, handleSQLiteError("begin", err)
	}
	return &unitOfWork{queries: queries{db: tx}, tx: tx}, nil
}

// SaveContent writes the content and its collections in one transaction.
func (r *Repository) SaveContent(ctx context.Context, content *simplecms.Content) error {
	uow, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	version := content.Version
	if err := uow.SaveContent(ctx, content); err != nil {
		content.Version = version
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		content.Version = version
		return err
	}
	return nil
}

type unitOfWork struct {
	queries
	tx *sql.Tx
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(); err != nil {
		return handleSQLiteError("commit", err)
	}
	return nil
}

// Rollback after Commit is a no-op.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return handleSQLiteError("rollback", err)
}

// Migrate applies the embedded migrations that are newer than the recorded
// schema version. Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := applyMigration(ctx, db, version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
