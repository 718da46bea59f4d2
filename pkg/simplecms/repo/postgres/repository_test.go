package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/postgres"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/repotest"
)

// newTestPool connects to TEST_DATABASE_URL inside a throwaway schema.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL tests in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	schema := "simplecms_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := pgx.Connect(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close(context.Background())
	})

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func TestPostgresRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplecms.Repository {
		return postgres.NewWithPool(newTestPool(t))
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, postgres.Migrate(ctx, pool))

	var applied int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestPostgresRepository_OrderIndexName(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := postgres.NewWithPool(pool)

	page := &simplecms.Page{ID: uuid.New()}
	require.NoError(t, repo.SavePage(ctx, page))
	region := &simplecms.Region{ID: uuid.New(), RegionIdentifier: "main"}
	require.NoError(t, repo.SaveRegion(ctx, region))
	content := &simplecms.Content{ID: uuid.New(), Status: simplecms.ContentStatusDraft}
	require.NoError(t, repo.SaveContent(ctx, content))

	pc := func() *simplecms.PageContent {
		return &simplecms.PageContent{ID: uuid.New(), PageID: page.ID, RegionID: region.ID, ContentID: content.ID, Order: 1}
	}
	require.NoError(t, repo.SavePageContent(ctx, pc()))

	// Bypass the repository to check the raw constraint.
	_, err := pool.Exec(ctx, `INSERT INTO page_contents (id, page_id, region_id, content_id, sort_order) VALUES ($1, $2, $3, $4, 1)`,
		uuid.New(), page.ID, region.ID, content.ID)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23505", pgErr.Code)
	assert.Equal(t, "page_contents_order_key", pgErr.ConstraintName)

	err = repo.SavePageContent(ctx, pc())
	assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict)
}
