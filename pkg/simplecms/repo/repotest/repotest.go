// Package repotest holds the behaviour every simplecms.Repository
// implementation must share. Backends run it from their own tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Factory returns an empty repository for one test.
type Factory func(t *testing.T) simplecms.Repository

// Run executes the shared repository suite.
func Run(t *testing.T, newRepo Factory) {
	t.Run("PagesAndRegions", func(t *testing.T) { testPagesAndRegions(t, newRepo(t)) })
	t.Run("ContentVersions", func(t *testing.T) { testContentVersions(t, newRepo(t)) })
	t.Run("ContentCollections", func(t *testing.T) { testContentCollections(t, newRepo(t)) })
	t.Run("PageContents", func(t *testing.T) { testPageContents(t, newRepo(t)) })
	t.Run("UnitOfWork", func(t *testing.T) { testUnitOfWork(t, newRepo(t)) })
	t.Run("ConcurrentInserts", func(t *testing.T) { testConcurrentInserts(t, newRepo(t)) })
}

type fixture struct {
	page    *simplecms.Page
	region  *simplecms.Region
	content *simplecms.Content
}

// now is truncated so timestamps survive a database round trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func seed(t *testing.T, repo simplecms.Repository) fixture {
	t.Helper()
	ctx := context.Background()
	ts := now()

	page := &simplecms.Page{ID: uuid.New(), Title: "Home", PageURL: "/", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.SavePage(ctx, page))
	region := &simplecms.Region{ID: uuid.New(), RegionIdentifier: "main", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.SaveRegion(ctx, region))
	content := &simplecms.Content{
		ID:             uuid.New(),
		Kind:           simplecms.ContentKindHTML,
		Name:           "Welcome",
		Status:         simplecms.ContentStatusDraft,
		CreatedAt:      ts,
		UpdatedAt:      ts,
		ContentOptions: []*simplecms.ContentOption{},
		ContentRegions: []*simplecms.ContentRegion{},
		ChildContents:  []*simplecms.ChildContent{},
	}
	require.NoError(t, repo.SaveContent(ctx, content))
	return fixture{page: page, region: region, content: content}
}

func testPagesAndRegions(t *testing.T, repo simplecms.Repository) {
	ctx := context.Background()
	f := seed(t, repo)

	page, err := repo.GetPage(ctx, f.page.ID)
	require.NoError(t, err)
	assert.Equal(t, f.page.Title, page.Title)
	assert.Equal(t, f.page.PageURL, page.PageURL)
	assert.Equal(t, 1, page.Version)
	assert.True(t, f.page.CreatedAt.Equal(page.CreatedAt))

	region, err := repo.GetRegion(ctx, f.region.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", region.RegionIdentifier)

	page.Title = "Renamed"
	require.NoError(t, repo.SavePage(ctx, page))
	page, err = repo.GetPage(ctx, f.page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", page.Title)

	_, err = repo.GetPage(ctx, uuid.New())
	assert.ErrorIs(t, err, simplecms.ErrNotFound)
	_, err = repo.GetRegion(ctx, uuid.New())
	assert.ErrorIs(t, err, simplecms.ErrNotFound)
	_, err = repo.GetContent(ctx, uuid.New())
	assert.ErrorIs(t, err, simplecms.ErrNotFound)
	_, err = repo.GetPageContent(ctx, uuid.New())
	assert.ErrorIs(t, err, simplecms.ErrNotFound)
}

func testContentVersions(t *testing.T, repo simplecms.Repository) {
	ctx := context.Background()
	f := seed(t, repo)
	assert.Equal(t, 1, f.content.Version)

	current, err := repo.GetContent(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, simplecms.ContentKindHTML, current.Kind)
	assert.Equal(t, simplecms.ContentStatusDraft, current.Status)
	assert.Nil(t, current.PublishedOn)
	assert.Nil(t, current.OriginalID)

	publishedOn := now()
	current.Status = simplecms.ContentStatusPublished
	current.PublishedOn = &publishedOn
	current.PublishedByUser = "editor"
	require.NoError(t, repo.SaveContent(ctx, current))
	assert.Equal(t, 2, current.Version)

	stale := *current
	stale.Version = 1
	err = repo.SaveContent(ctx, &stale)
	assert.ErrorIs(t, err, simplecms.ErrVersionMismatch)
	assert.Equal(t, 1, stale.Version, "a rejected save keeps the caller's version")

	stored, err := repo.GetContent(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "editor", stored.PublishedByUser)
	require.NotNil(t, stored.PublishedOn)
	assert.True(t, publishedOn.Equal(*stored.PublishedOn))

	item := stored.CreateHistoryItem(now())
	require.NoError(t, repo.SaveContent(ctx, item))

	withHistory, err := repo.GetContent(ctx, f.content.ID, simplecms.FetchHistory())
	require.NoError(t, err)
	require.Len(t, withHistory.History, 1)
	assert.Equal(t, item.ID, withHistory.History[0].ID)
	require.NotNil(t, withHistory.History[0].OriginalID)
	assert.Equal(t, f.content.ID, *withHistory.History[0].OriginalID)
	assert.Equal(t, simplecms.ContentStatusArchived, withHistory.History[0].Status)
}

func testContentCollections(t *testing.T, repo simplecms.Repository) {
	ctx := context.Background()
	f := seed(t, repo)
	ts := now()

	sidebar := &simplecms.Region{ID: uuid.New(), RegionIdentifier: "sidebar", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.SaveRegion(ctx, sidebar))

	widgetID := uuid.New()
	childBindingID := uuid.New()
	widget := &simplecms.Content{
		ID:        widgetID,
		Kind:      simplecms.ContentKindHTMLWidget,
		Name:      "Widget",
		Status:    simplecms.ContentStatusDraft,
		CreatedAt: ts,
		UpdatedAt: ts,
		ContentOptions: []*simplecms.ContentOption{
			{ID: uuid.New(), Key: "title", Type: simplecms.OptionTypeText, DefaultValue: "Hello", IsDeletable: true},
			{ID: uuid.New(), Key: "count", Type: simplecms.OptionTypeInteger, DefaultValue: "3"},
		},
		ContentRegions: []*simplecms.ContentRegion{
			{ID: uuid.New(), RegionID: f.region.ID},
			{ID: uuid.New(), RegionID: sidebar.ID},
		},
		ChildContents: []*simplecms.ChildContent{
			{
				ID: childBindingID, ChildID: f.content.ID, AssignmentIdentifier: uuid.New(),
				Options: []*simplecms.ChildContentOption{
					{ID: uuid.New(), Key: "title", Type: simplecms.OptionTypeText, Value: "Override"},
				},
			},
		},
	}
	require.NoError(t, repo.SaveContent(ctx, widget))

	loaded, err := repo.GetContent(ctx, widgetID, simplecms.FetchAll())
	require.NoError(t, err)

	require.Len(t, loaded.ContentOptions, 2)
	assert.Equal(t, "title", loaded.ContentOptions[0].Key)
	assert.Equal(t, "Hello", loaded.ContentOptions[0].DefaultValue)
	assert.True(t, loaded.ContentOptions[0].IsDeletable)
	assert.Equal(t, simplecms.OptionTypeInteger, loaded.ContentOptions[1].Type)
	assert.Equal(t, widgetID, loaded.ContentOptions[1].ContentID)

	require.Len(t, loaded.ContentRegions, 2)
	identifiers := []string{}
	for _, cr := range loaded.ContentRegions {
		assert.Equal(t, widgetID, cr.ContentID)
		require.NotNil(t, cr.Region)
		identifiers = append(identifiers, cr.Region.RegionIdentifier)
	}
	assert.ElementsMatch(t, []string{"main", "sidebar"}, identifiers)

	require.Len(t, loaded.ChildContents, 1)
	assert.True(t, loaded.ChildContentsLoaded)
	child := loaded.ChildContents[0]
	assert.Equal(t, childBindingID, child.ID)
	assert.Equal(t, widgetID, child.ParentID)
	assert.Equal(t, f.content.ID, child.ChildID)
	require.Len(t, child.Options, 1)
	assert.Equal(t, "Override", child.Options[0].Value)
	assert.Equal(t, childBindingID, child.Options[0].ChildContentID)
	assert.Empty(t, loaded.History)

	// Replacing a collection drops the previous rows; nil leaves it intact.
	loaded.ContentOptions = loaded.ContentOptions[:1]
	loaded.ContentRegions = nil
	require.NoError(t, repo.SaveContent(ctx, loaded))

	reloaded, err := repo.GetContent(ctx, widgetID, simplecms.FetchRegions(), simplecms.FetchOptionsCollection())
	require.NoError(t, err)
	assert.Len(t, reloaded.ContentOptions, 1)
	assert.Len(t, reloaded.ContentRegions, 2)
	assert.Nil(t, reloaded.ChildContents)
}

func testPageContents(t *testing.T, repo simplecms.Repository) {
	ctx := context.Background()
	f := seed(t, repo)

	placement := func(order int, parentID *uuid.UUID) *simplecms.PageContent {
		ts := now()
		return &simplecms.PageContent{
			ID: uuid.New(), PageID: f.page.ID, RegionID: f.region.ID, ContentID: f.content.ID,
			ParentID: parentID, Order: order, CreatedAt: ts, UpdatedAt: ts,
		}
	}

	top := placement(1, nil)
	require.NoError(t, repo.SavePageContent(ctx, top))
	assert.Equal(t, 1, top.Version)

	stored, err := repo.GetPageContent(ctx, top.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Order)
	assert.Nil(t, stored.ParentID)
	assert.Equal(t, f.content.ID, stored.ContentID)

	err = repo.SavePageContent(ctx, placement(1, nil))
	assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict, "duplicate top-level order")

	dup := placement(9, nil)
	dup.ID = top.ID
	err = repo.SavePageContent(ctx, dup)
	assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict, "duplicate id")

	nested := placement(1, &top.ID)
	require.NoError(t, repo.SavePageContent(ctx, nested))
	err = repo.SavePageContent(ctx, placement(1, &top.ID))
	assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict, "duplicate nested order")

	missing := uuid.New()
	err = repo.SavePageContent(ctx, placement(1, &missing))
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	bad := placement(2, nil)
	bad.ContentID = uuid.New()
	err = repo.SavePageContent(ctx, bad)
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	require.NoError(t, repo.SavePageContent(ctx, placement(3, nil)))

	topLevel, err := repo.ListPageContents(ctx, simplecms.PageContentFilter{PageID: f.page.ID, TopLevelOnly: true})
	require.NoError(t, err)
	require.Len(t, topLevel, 2)
	assert.Equal(t, 1, topLevel[0].Order)
	assert.Equal(t, 3, topLevel[1].Order)

	children, err := repo.ListPageContents(ctx, simplecms.PageContentFilter{PageID: f.page.ID, ParentID: &top.ID})
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.NotNil(t, children[0].ParentID)
	assert.Equal(t, top.ID, *children[0].ParentID)

	byRegion, err := repo.ListPageContents(ctx, simplecms.PageContentFilter{PageID: f.page.ID, RegionID: &f.region.ID, ContentID: &f.content.ID})
	require.NoError(t, err)
	assert.Len(t, byRegion, 3)

	empty, err := repo.ListPageContents(ctx, simplecms.PageContentFilter{PageID: uuid.New()})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testUnitOfWork(t *testing.T, repo simplecms.Repository) {
	ctx := context.Background()
	f := seed(t, repo)

	newPlacement := func(order int) *simplecms.PageContent {
		ts := now()
		return &simplecms.PageContent{
			ID: uuid.New(), PageID: f.page.ID, RegionID: f.region.ID, ContentID: f.content.ID,
			Order: order, CreatedAt: ts, UpdatedAt: ts,
		}
	}

	// Rolled back writes disappear.
	uow, err := repo.Begin(ctx)
	require.NoError(t, err)
	discarded := newPlacement(1)
	require.NoError(t, uow.SavePageContent(ctx, discarded))
	siblings, err := uow.ListPageContents(ctx, simplecms.PageContentFilter{PageID: f.page.ID})
	require.NoError(t, err)
	assert.Len(t, siblings, 1, "own writes are visible inside the unit of work")
	require.NoError(t, uow.Rollback(ctx))

	_, err = repo.GetPageContent(ctx, discarded.ID)
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	// Committed writes persist; rollback afterwards is a no-op.
	uow, err = repo.Begin(ctx)
	require.NoError(t, err)
	kept := newPlacement(1)
	require.NoError(t, uow.SavePageContent(ctx, kept))
	current, err := uow.GetContent(ctx, f.content.ID)
	require.NoError(t, err)
	current.Name = "Inside uow"
	require.NoError(t, uow.SaveContent(ctx, current))
	require.NoError(t, uow.Commit(ctx))
	require.NoError(t, uow.Rollback(ctx))

	_, err = repo.GetPageContent(ctx, kept.ID)
	require.NoError(t, err)
	content, err := repo.GetContent(ctx, f.content.ID)
	require.NoError(t, err)
	assert.Equal(t, "Inside uow", content.Name)
	assert.Equal(t, 2, content.Version)
}

func testConcurrentInserts(t *testing.T, repo simplecms.Repository) {
	const workers = 8
	ctx := context.Background()
	f := seed(t, repo)

	svc, err := simplecms.New(simplecms.WithRepository(repo))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
				PageID: f.page.ID, RegionID: f.region.ID, ContentID: f.content.ID,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	placements, err := repo.ListPageContents(ctx, simplecms.PageContentFilter{PageID: f.page.ID, TopLevelOnly: true})
	require.NoError(t, err)
	require.Len(t, placements, workers)
	for i, pc := range placements {
		assert.Equal(t, i+1, pc.Order)
	}
}
