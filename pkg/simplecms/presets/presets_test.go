package presets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

func placeOne(t *testing.T, svc simplecms.Service) *simplecms.InsertContentToPageResult {
	t.Helper()
	ctx := context.Background()

	page, err := svc.CreatePage(ctx, simplecms.CreatePageRequest{Title: "Home", PageURL: "/"})
	require.NoError(t, err)
	region, err := svc.CreateRegion(ctx, simplecms.CreateRegionRequest{RegionIdentifier: "main"})
	require.NoError(t, err)
	content, err := svc.CreateContent(ctx, simplecms.CreateContentRequest{
		Kind: simplecms.ContentKindHTML,
		Name: "Hello",
	})
	require.NoError(t, err)

	result, err := svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
		PageID: page.ID, RegionID: region.ID, ContentID: content.ID,
	})
	require.NoError(t, err)
	return result
}

func TestNewDevelopment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev-data")
	core, logs := observer.New(zap.InfoLevel)

	svc, cleanup, err := NewDevelopment(WithDevDataDir(dir), WithDevLogger(zap.New(core)))
	require.NoError(t, err)

	placeOne(t, svc)
	assert.Equal(t, 1, logs.FilterMessage("page content inserted").Len())

	_, err = os.Stat(filepath.Join(dir, "cms.db"))
	assert.NoError(t, err, "database file should exist")

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "data directory should be removed after cleanup")
}

type countingSink struct {
	simplecms.NoopEventSink
	inserted int
}

func (s *countingSink) PageContentInserted(ctx context.Context, pc *simplecms.PageContent) error {
	s.inserted++
	return nil
}

func TestNewTesting(t *testing.T) {
	t.Run("default configuration", func(t *testing.T) {
		svc := NewTesting(t)
		result := placeOne(t, svc)

		pc, err := svc.GetPageContent(context.Background(), result.PageContentID)
		require.NoError(t, err)
		assert.Equal(t, simplecms.DefaultOrderBase, pc.Order)
	})

	t.Run("custom sink and order base", func(t *testing.T) {
		sink := &countingSink{}
		svc := NewTesting(t, WithTestEventSink(sink), WithTestOrderBase(0))
		result := placeOne(t, svc)

		pc, err := svc.GetPageContent(context.Background(), result.PageContentID)
		require.NoError(t, err)
		assert.Equal(t, 0, pc.Order)
		assert.Equal(t, 1, sink.inserted)
	})

	t.Run("isolated per test", func(t *testing.T) {
		a := NewTesting(t)
		b := NewTesting(t)
		page, err := a.CreatePage(context.Background(), simplecms.CreatePageRequest{Title: "A", PageURL: "/a"})
		require.NoError(t, err)

		_, err = b.GetPage(context.Background(), page.ID)
		assert.ErrorIs(t, err, simplecms.ErrNotFound)
	})
}

func TestNewProduction(t *testing.T) {
	t.Run("rejects memory database", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "memory")
		_, err := NewProduction(context.Background())
		assert.Error(t, err)
	})

	t.Run("sqlite from environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "cms.db"))
		t.Setenv("EVENT_SINK", "noop")
		t.Setenv("LOG_LEVEL", "error")

		rt, err := NewProduction(context.Background())
		require.NoError(t, err)
		defer rt.Close()

		placeOne(t, rt.Service)
	})
}
