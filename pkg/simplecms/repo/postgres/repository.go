// Package postgres implements simplecms.Repository on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/postgres/migrations"
)

// DB is a DBTX that can open transactions, such as *pgxpool.Pool or *pgx.Conn.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements simplecms.Repository using PostgreSQL
type Repository struct {
	queries
	db DB
}

// New creates a new PostgreSQL repository
func New(db DB) *Repository {
	return &Repository{queries: queries{db: db}, db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

var _ simplecms.Repository = (*Repository)(nil)

// Begin opens a transaction backed unit of work.
func (r *Repository) Begin(ctx context.Context) (simplecms.UnitOfWork, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, handlePostgresError("begin", err)
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
	tx pgx.Tx
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return handlePostgresError("commit", err)
	}
	return nil
}

// Rollback after Commit is a no-op.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return handlePostgresError("rollback", err)
}

// Migrate applies the embedded migrations that are newer than the recorded
// schema version. Each migration runs in its own transaction.
func Migrate(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion); err != nil {
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

func applyMigration(ctx context.Context, db DB, version int, sql string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
