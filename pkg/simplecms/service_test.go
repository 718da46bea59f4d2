package simplecms_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
)

// recordingSink collects delivered events.
type recordingSink struct {
	mu        sync.Mutex
	inserted  []*simplecms.PageContent
	published []*simplecms.Content
	err       error
	panics    bool
}

func (s *recordingSink) PageContentInserted(ctx context.Context, pc *simplecms.PageContent) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, pc)
	return s.err
}

func (s *recordingSink) ContentPublished(ctx context.Context, c *simplecms.Content) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, c)
	return s.err
}

func (s *recordingSink) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

// faultyRepository lets a test intercept unit of work calls.
type faultyRepository struct {
	*memory.Repository
	stripRegions bool
	wrapUoW      func(simplecms.UnitOfWork) simplecms.UnitOfWork
}

func (r *faultyRepository) GetContent(ctx context.Context, id uuid.UUID, opts ...simplecms.FetchOption) (*simplecms.Content, error) {
	c, err := r.Repository.GetContent(ctx, id, opts...)
	if err == nil && r.stripRegions {
		c.ContentRegions = nil
	}
	return c, err
}

func (r *faultyRepository) Begin(ctx context.Context) (simplecms.UnitOfWork, error) {
	uow, err := r.Repository.Begin(ctx)
	if err != nil || r.wrapUoW == nil {
		return uow, err
	}
	return r.wrapUoW(uow), nil
}

type faultyUnitOfWork struct {
	simplecms.UnitOfWork
	savePageContent  func(ctx context.Context, pc *simplecms.PageContent) error
	listPageContents func(ctx context.Context, filter simplecms.PageContentFilter) ([]*simplecms.PageContent, error)
}

func (u *faultyUnitOfWork) SavePageContent(ctx context.Context, pc *simplecms.PageContent) error {
	if u.savePageContent != nil {
		return u.savePageContent(ctx, pc)
	}
	return u.UnitOfWork.SavePageContent(ctx, pc)
}

func (u *faultyUnitOfWork) ListPageContents(ctx context.Context, filter simplecms.PageContentFilter) ([]*simplecms.PageContent, error) {
	if u.listPageContents != nil {
		return u.listPageContents(ctx, filter)
	}
	return u.UnitOfWork.ListPageContents(ctx, filter)
}

// noopLocker disables in-process serialisation so the storage constraint is
// the only guard.
type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) { return func() {}, nil }

type testEnv struct {
	svc     simplecms.Service
	repo    simplecms.Repository
	sink    *recordingSink
	page    *simplecms.Page
	region  *simplecms.Region
	content *simplecms.Content
}

func setupTestService(t *testing.T, repo simplecms.Repository, opts ...simplecms.Option) *testEnv {
	t.Helper()
	ctx := context.Background()
	if repo == nil {
		repo = memory.New()
	}
	sink := &recordingSink{}

	options := append([]simplecms.Option{
		simplecms.WithRepository(repo),
		simplecms.WithEventSink(sink),
	}, opts...)
	svc, err := simplecms.New(options...)
	require.NoError(t, err)

	page, err := svc.CreatePage(ctx, simplecms.CreatePageRequest{Title: "Home", PageURL: "/"})
	require.NoError(t, err)
	region, err := svc.CreateRegion(ctx, simplecms.CreateRegionRequest{RegionIdentifier: "main"})
	require.NoError(t, err)
	content, err := svc.CreateContent(ctx, simplecms.CreateContentRequest{
		Kind:   simplecms.ContentKindHTML,
		Name:   "Welcome",
		Status: simplecms.ContentStatusPublished,
	})
	require.NoError(t, err)

	return &testEnv{svc: svc, repo: repo, sink: sink, page: page, region: region, content: content}
}

func (e *testEnv) insert(t *testing.T, contentID uuid.UUID, parentID *uuid.UUID) *simplecms.InsertContentToPageResult {
	t.Helper()
	result, err := e.svc.InsertContentToPage(context.Background(), simplecms.InsertContentToPageRequest{
		PageID:              e.page.ID,
		RegionID:            e.region.ID,
		ContentID:           contentID,
		ParentPageContentID: parentID,
	})
	require.NoError(t, err)
	return result
}

func TestNew(t *testing.T) {
	t.Run("RepositoryRequired", func(t *testing.T) {
		_, err := simplecms.New()
		assert.ErrorIs(t, err, simplecms.ErrRepositoryRequired)
	})

	t.Run("NegativeRetries", func(t *testing.T) {
		_, err := simplecms.New(simplecms.WithRepository(memory.New()), simplecms.WithMaxInsertRetries(-1))
		assert.Error(t, err)
	})
}

func TestInsertContentToPage_TopLevel(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()

	result := env.insert(t, env.content.ID, nil)

	assert.NotEqual(t, uuid.Nil, result.PageContentID)
	assert.Equal(t, env.content.ID, result.ContentID)
	assert.Equal(t, env.region.ID, result.RegionID)
	assert.Equal(t, env.page.ID, result.PageID)
	assert.Equal(t, simplecms.ContentStatusPublished, result.DesirableStatus)
	assert.Equal(t, "Welcome", result.Title)
	assert.Equal(t, env.content.Version, result.ContentVersion)
	assert.Equal(t, 1, result.PageContentVersion)
	assert.Equal(t, "html-content", result.ContentType)
	assert.Nil(t, result.Regions)

	pc, err := env.svc.GetPageContent(ctx, result.PageContentID)
	require.NoError(t, err)
	assert.Equal(t, 1, pc.Order)
	assert.Nil(t, pc.ParentID)

	require.Equal(t, 1, env.sink.insertedCount())
	assert.Equal(t, result.PageContentID, env.sink.inserted[0].ID)
}

func TestInsertContentToPage_Ordering(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()

	first := env.insert(t, env.content.ID, nil)
	second := env.insert(t, env.content.ID, nil)

	t.Run("SiblingsAscend", func(t *testing.T) {
		pc, err := env.svc.GetPageContent(ctx, second.PageContentID)
		require.NoError(t, err)
		assert.Equal(t, 2, pc.Order)
	})

	t.Run("ParentScopeIsIndependent", func(t *testing.T) {
		nested := env.insert(t, env.content.ID, &first.PageContentID)
		pc, err := env.svc.GetPageContent(ctx, nested.PageContentID)
		require.NoError(t, err)
		assert.Equal(t, 1, pc.Order)
		require.NotNil(t, pc.ParentID)
		assert.Equal(t, first.PageContentID, *pc.ParentID)

		next, err := env.svc.GetNextOrderNumber(ctx, env.page.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, next)
	})

	t.Run("ZeroParentMeansTopLevel", func(t *testing.T) {
		zero := uuid.Nil
		result := env.insert(t, env.content.ID, &zero)
		pc, err := env.svc.GetPageContent(ctx, result.PageContentID)
		require.NoError(t, err)
		assert.Nil(t, pc.ParentID)
		assert.Equal(t, 3, pc.Order)
	})

	t.Run("ListPageContents", func(t *testing.T) {
		top, err := env.svc.ListPageContents(ctx, simplecms.PageContentFilter{PageID: env.page.ID, TopLevelOnly: true})
		require.NoError(t, err)
		require.Len(t, top, 3)
		for i, pc := range top {
			assert.Equal(t, i+1, pc.Order)
		}
	})
}

func TestInsertContentToPage_OrderBase(t *testing.T) {
	env := setupTestService(t, nil, simplecms.WithOrderBase(10))
	ctx := context.Background()

	result := env.insert(t, env.content.ID, nil)
	pc, err := env.svc.GetPageContent(ctx, result.PageContentID)
	require.NoError(t, err)
	assert.Equal(t, 10, pc.Order)
}

func TestInsertContentToPage_ChildRegions(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()

	left, err := env.svc.CreateRegion(ctx, simplecms.CreateRegionRequest{RegionIdentifier: "left"})
	require.NoError(t, err)
	right, err := env.svc.CreateRegion(ctx, simplecms.CreateRegionRequest{RegionIdentifier: "right"})
	require.NoError(t, err)

	widget, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{
		Kind:      simplecms.ContentKindServerWidget,
		Name:      "Two columns",
		RegionIDs: []uuid.UUID{left.ID, right.ID},
	})
	require.NoError(t, err)

	result, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
		PageID:              env.page.ID,
		RegionID:            env.region.ID,
		ContentID:           widget.ID,
		IncludeChildRegions: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "server-widget", result.ContentType)
	assert.Equal(t, simplecms.ContentStatusDraft, result.DesirableStatus)
	require.Len(t, result.Regions, 2)
	assert.ElementsMatch(t,
		[]simplecms.ChildRegionViewModel{
			{RegionID: left.ID, RegionIdentifier: "left"},
			{RegionID: right.ID, RegionIdentifier: "right"},
		},
		result.Regions)
}

type failingRegionResolver struct{}

func (failingRegionResolver) GetChildRegionViewModels(ctx context.Context, content *simplecms.Content) ([]simplecms.ChildRegionViewModel, error) {
	return nil, errors.New("widget service down")
}

func TestInsertContentToPage_ChildRegionFailureLeavesNoPlacement(t *testing.T) {
	env := setupTestService(t, nil, simplecms.WithChildRegionResolver(failingRegionResolver{}))
	ctx := context.Background()

	result, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
		PageID:              env.page.ID,
		RegionID:            env.region.ID,
		ContentID:           env.content.ID,
		IncludeChildRegions: true,
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widget service down")

	all, err := env.svc.ListPageContents(ctx, simplecms.PageContentFilter{PageID: env.page.ID})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, env.sink.insertedCount())

	t.Run("insert without child regions succeeds once", func(t *testing.T) {
		again := env.insert(t, env.content.ID, nil)
		assert.NotEqual(t, uuid.Nil, again.PageContentID)

		all, err := env.svc.ListPageContents(ctx, simplecms.PageContentFilter{PageID: env.page.ID})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestInsertContentToPage_ProjectionRegistry(t *testing.T) {
	t.Run("UnregisteredKind", func(t *testing.T) {
		env := setupTestService(t, nil)
		ctx := context.Background()

		content, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{Kind: "custom-kind", Name: "Custom"})
		require.NoError(t, err)

		result := env.insert(t, content.ID, nil)
		assert.Empty(t, result.ContentType)
	})

	t.Run("BlogAccessor", func(t *testing.T) {
		resolver := simplecms.NewDefaultProjectionResolver()
		simplecms.RegisterBlogAccessors(resolver)
		env := setupTestService(t, nil, simplecms.WithProjectionResolver(resolver))
		ctx := context.Background()

		post, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{Kind: simplecms.ContentKindBlogPost, Name: "Post"})
		require.NoError(t, err)

		result := env.insert(t, post.ID, nil)
		assert.Equal(t, "blog-post-content", result.ContentType)
	})
}

func TestInsertContentToPage_NotFound(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()
	missing := uuid.New()

	tests := []struct {
		name   string
		req    simplecms.InsertContentToPageRequest
		entity string
	}{
		{
			name:   "Page",
			req:    simplecms.InsertContentToPageRequest{PageID: missing, RegionID: env.region.ID, ContentID: env.content.ID},
			entity: simplecms.EntityPage,
		},
		{
			name:   "Region",
			req:    simplecms.InsertContentToPageRequest{PageID: env.page.ID, RegionID: missing, ContentID: env.content.ID},
			entity: simplecms.EntityRegion,
		},
		{
			name:   "Content",
			req:    simplecms.InsertContentToPageRequest{PageID: env.page.ID, RegionID: env.region.ID, ContentID: missing},
			entity: simplecms.EntityContent,
		},
		{
			name: "Parent",
			req: simplecms.InsertContentToPageRequest{
				PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID, ParentPageContentID: &missing,
			},
			entity: simplecms.EntityPageContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.svc.InsertContentToPage(ctx, tt.req)
			assert.Nil(t, result)
			require.ErrorIs(t, err, simplecms.ErrNotFound)

			var nf *simplecms.NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.entity, nf.Entity)
			assert.Equal(t, missing, nf.ID)
		})
	}

	all, err := env.svc.ListPageContents(ctx, simplecms.PageContentFilter{PageID: env.page.ID})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, env.sink.insertedCount())
}

func TestInsertContentToPage_InvalidContentState(t *testing.T) {
	ctx := context.Background()

	t.Run("RegionsNotLoaded", func(t *testing.T) {
		repo := &faultyRepository{Repository: memory.New()}
		env := setupTestService(t, repo)
		repo.stripRegions = true

		_, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
			PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
		})
		assert.ErrorIs(t, err, simplecms.ErrInvalidContentState)
	})

	t.Run("ArchivedVersion", func(t *testing.T) {
		env := setupTestService(t, nil)
		_, err := env.svc.PublishContent(ctx, simplecms.PublishContentRequest{ContentID: env.content.ID})
		require.NoError(t, err)

		current, err := env.svc.GetContent(ctx, env.content.ID, simplecms.FetchHistory())
		require.NoError(t, err)
		require.Len(t, current.History, 1)

		_, err = env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
			PageID: env.page.ID, RegionID: env.region.ID, ContentID: current.History[0].ID,
		})
		var invalid *simplecms.InvalidContentStateError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, current.History[0].ID, invalid.ContentID)
	})

	t.Run("ParentOnAnotherPage", func(t *testing.T) {
		env := setupTestService(t, nil)
		other, err := env.svc.CreatePage(ctx, simplecms.CreatePageRequest{Title: "Other", PageURL: "/other"})
		require.NoError(t, err)
		foreign, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
			PageID: other.ID, RegionID: env.region.ID, ContentID: env.content.ID,
		})
		require.NoError(t, err)

		_, err = env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
			PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
			ParentPageContentID: &foreign.PageContentID,
		})
		assert.ErrorIs(t, err, simplecms.ErrInvalidContentState)
	})
}

func TestInsertContentToPage_SaveFailureRollsBack(t *testing.T) {
	repo := &faultyRepository{Repository: memory.New()}
	env := setupTestService(t, repo)
	ctx := context.Background()

	repo.wrapUoW = func(uow simplecms.UnitOfWork) simplecms.UnitOfWork {
		return &faultyUnitOfWork{
			UnitOfWork: uow,
			savePageContent: func(ctx context.Context, pc *simplecms.PageContent) error {
				return errors.New("disk full")
			},
		}
	}

	result, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
		PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
	})
	assert.Nil(t, result)
	require.ErrorIs(t, err, simplecms.ErrPersistence)

	var pErr *simplecms.PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "save page content", pErr.Op)

	all, err := env.svc.ListPageContents(ctx, simplecms.PageContentFilter{PageID: env.page.ID})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, env.sink.insertedCount())
}

func TestInsertContentToPage_TransactionTimeout(t *testing.T) {
	repo := &faultyRepository{Repository: memory.New()}
	env := setupTestService(t, repo, simplecms.WithTxTimeout(10*time.Millisecond))
	ctx := context.Background()

	repo.wrapUoW = func(uow simplecms.UnitOfWork) simplecms.UnitOfWork {
		return &faultyUnitOfWork{
			UnitOfWork: uow,
			listPageContents: func(ctx context.Context, _ simplecms.PageContentFilter) ([]*simplecms.PageContent, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
	}

	_, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
		PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
	})
	assert.ErrorIs(t, err, simplecms.ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, env.sink.insertedCount())
}

func TestInsertContentToPage_ConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesThenSucceeds", func(t *testing.T) {
		repo := &faultyRepository{Repository: memory.New()}
		env := setupTestService(t, repo)

		var calls int32
		repo.wrapUoW = func(uow simplecms.UnitOfWork) simplecms.UnitOfWork {
			return &faultyUnitOfWork{
				UnitOfWork: uow,
				savePageContent: func(ctx context.Context, pc *simplecms.PageContent) error {
					if atomic.AddInt32(&calls, 1) == 1 {
						return fmt.Errorf("%w: duplicate order", simplecms.ErrConcurrencyConflict)
					}
					return uow.SavePageContent(ctx, pc)
				},
			}
		}

		result, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
			PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.Equal(t, 1, env.sink.insertedCount())
		assert.NotEqual(t, uuid.Nil, result.PageContentID)
	})

	t.Run("GivesUpAfterRetries", func(t *testing.T) {
		repo := &faultyRepository{Repository: memory.New()}
		env := setupTestService(t, repo, simplecms.WithMaxInsertRetries(2))

		var calls int32
		repo.wrapUoW = func(uow simplecms.UnitOfWork) simplecms.UnitOfWork {
			return &faultyUnitOfWork{
				UnitOfWork: uow,
				savePageContent: func(ctx context.Context, pc *simplecms.PageContent) error {
					atomic.AddInt32(&calls, 1)
					return fmt.Errorf("%w: duplicate order", simplecms.ErrConcurrencyConflict)
				},
			}
		}

		_, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
			PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
		})
		var conflict *simplecms.ConcurrencyConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 3, conflict.Attempts)
		assert.Equal(t, env.page.ID, conflict.PageID)
		assert.Equal(t, 1, conflict.Order)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, 0, env.sink.insertedCount())
	})
}

func TestInsertContentToPage_ConcurrentOrderUniqueness(t *testing.T) {
	const workers = 20

	tests := []struct {
		name string
		opts []simplecms.Option
	}{
		{name: "KeyedLock"},
		{name: "StorageConstraintOnly", opts: []simplecms.Option{
			simplecms.WithLocker(noopLocker{}),
			simplecms.WithMaxInsertRetries(workers),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestService(t, nil, tt.opts...)
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := env.svc.InsertContentToPage(ctx, simplecms.InsertContentToPageRequest{
						PageID: env.page.ID, RegionID: env.region.ID, ContentID: env.content.ID,
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			placements, err := env.svc.ListPageContents(ctx, simplecms.PageContentFilter{PageID: env.page.ID, TopLevelOnly: true})
			require.NoError(t, err)
			require.Len(t, placements, workers)
			for i, pc := range placements {
				assert.Equal(t, i+1, pc.Order)
			}
			assert.Equal(t, workers, env.sink.insertedCount())
		})
	}
}

func TestInsertContentToPage_SinkFailureIsIgnored(t *testing.T) {
	ctx := context.Background()

	t.Run("Error", func(t *testing.T) {
		env := setupTestService(t, nil)
		env.sink.err = errors.New("bus down")

		result := env.insert(t, env.content.ID, nil)
		_, err := env.svc.GetPageContent(ctx, result.PageContentID)
		assert.NoError(t, err)
	})

	t.Run("Panic", func(t *testing.T) {
		env := setupTestService(t, nil)
		env.sink.panics = true

		result := env.insert(t, env.content.ID, nil)
		_, err := env.svc.GetPageContent(ctx, result.PageContentID)
		assert.NoError(t, err)
	})
}

func TestCreateContent(t *testing.T) {
	env := setupTestService(t, nil)
	ctx := context.Background()

	t.Run("DefaultsToDraft", func(t *testing.T) {
		content, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{Kind: simplecms.ContentKindHTML, Name: "Draft"})
		require.NoError(t, err)
		assert.Equal(t, simplecms.ContentStatusDraft, content.Status)
		assert.Equal(t, 1, content.Version)
		assert.Nil(t, content.PublishedOn)
		assert.True(t, content.IsOriginal())
	})

	t.Run("RejectsArchived", func(t *testing.T) {
		_, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{Status: simplecms.ContentStatusArchived})
		assert.ErrorIs(t, err, simplecms.ErrInvalidContentState)
	})

	t.Run("UnknownRegion", func(t *testing.T) {
		_, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{RegionIDs: []uuid.UUID{uuid.New()}})
		assert.ErrorIs(t, err, simplecms.ErrNotFound)
	})

	t.Run("OptionsAndChildren", func(t *testing.T) {
		assignment := uuid.New()
		content, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{
			Kind: simplecms.ContentKindHTMLWidget,
			Name: "Widget",
			Options: []*simplecms.ContentOption{
				{Key: "title", Type: simplecms.OptionTypeText, DefaultValue: "Hello"},
			},
			ChildContents: []*simplecms.ChildContent{
				{ChildID: env.content.ID, AssignmentIdentifier: assignment, Options: []*simplecms.ChildContentOption{
					{Key: "title", Type: simplecms.OptionTypeText, Value: "Override"},
				}},
			},
		})
		require.NoError(t, err)

		stored, err := env.svc.GetContent(ctx, content.ID, simplecms.FetchAll())
		require.NoError(t, err)
		require.Len(t, stored.ContentOptions, 1)
		assert.Equal(t, content.ID, stored.ContentOptions[0].ContentID)
		require.Len(t, stored.ChildContents, 1)
		assert.Equal(t, content.ID, stored.ChildContents[0].ParentID)
		assert.Equal(t, env.content.ID, stored.ChildContents[0].ChildID)
		assert.Equal(t, assignment, stored.ChildContents[0].AssignmentIdentifier)
		require.Len(t, stored.ChildContents[0].Options, 1)
		assert.Equal(t, "Override", stored.ChildContents[0].Options[0].Value)
	})

	t.Run("UnknownChild", func(t *testing.T) {
		_, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{
			ChildContents: []*simplecms.ChildContent{{ChildID: uuid.New()}},
		})
		assert.ErrorIs(t, err, simplecms.ErrNotFound)
	})
}

func TestCreateRegion_RequiresIdentifier(t *testing.T) {
	svc, err := simplecms.New(simplecms.WithRepository(memory.New()))
	require.NoError(t, err)

	_, err = svc.CreateRegion(context.Background(), simplecms.CreateRegionRequest{})
	assert.ErrorIs(t, err, simplecms.ErrInvalidRequest)
}

func TestPublishContent(t *testing.T) {
	ctx := context.Background()
	publishedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("ArchivesPreviousState", func(t *testing.T) {
		env := setupTestService(t, nil, simplecms.WithClock(func() time.Time { return publishedAt }))
		draft, err := env.svc.CreateContent(ctx, simplecms.CreateContentRequest{
			Kind: simplecms.ContentKindHTML,
			Name: "Draft name",
			Options: []*simplecms.ContentOption{
				{Key: "css", Type: simplecms.OptionTypeText, DefaultValue: "body{}"},
			},
		})
		require.NoError(t, err)

		newName := "Published name"
		published, err := env.svc.PublishContent(ctx, simplecms.PublishContentRequest{
			ContentID:       draft.ID,
			ExpectedVersion: draft.Version,
			PublishedBy:     "editor",
			Name:            &newName,
		})
		require.NoError(t, err)

		assert.Equal(t, draft.ID, published.ID)
		assert.Equal(t, simplecms.ContentStatusPublished, published.Status)
		assert.Equal(t, draft.Version+1, published.Version)
		assert.Equal(t, "Published name", published.Name)
		assert.Equal(t, "editor", published.PublishedByUser)
		require.NotNil(t, published.PublishedOn)
		assert.True(t, publishedAt.Equal(*published.PublishedOn))

		reloaded, err := env.svc.GetContent(ctx, draft.ID, simplecms.FetchHistory())
		require.NoError(t, err)
		require.Len(t, reloaded.History, 1)
		history := reloaded.History[0]
		assert.NotEqual(t, draft.ID, history.ID)
		assert.Equal(t, "Draft name", history.Name)
		assert.Equal(t, simplecms.ContentStatusArchived, history.Status)
		require.NotNil(t, history.OriginalID)
		assert.Equal(t, draft.ID, *history.OriginalID)

		archived, err := env.svc.GetContent(ctx, history.ID, simplecms.FetchOptionsCollection())
		require.NoError(t, err)
		require.Len(t, archived.ContentOptions, 1)
		assert.Equal(t, "css", archived.ContentOptions[0].Key)
		assert.Equal(t, history.ID, archived.ContentOptions[0].ContentID)

		require.Len(t, env.sink.published, 1)
		assert.Equal(t, draft.ID, env.sink.published[0].ID)
	})

	t.Run("StaleVersion", func(t *testing.T) {
		env := setupTestService(t, nil)

		_, err := env.svc.PublishContent(ctx, simplecms.PublishContentRequest{ContentID: env.content.ID, ExpectedVersion: env.content.Version})
		require.NoError(t, err)

		_, err = env.svc.PublishContent(ctx, simplecms.PublishContentRequest{ContentID: env.content.ID, ExpectedVersion: env.content.Version})
		assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict)
		assert.ErrorIs(t, err, simplecms.ErrVersionMismatch)

		reloaded, err := env.svc.GetContent(ctx, env.content.ID, simplecms.FetchHistory())
		require.NoError(t, err)
		assert.Len(t, reloaded.History, 1)
		assert.Len(t, env.sink.published, 1)
	})

	t.Run("ArchivedCannotBePublished", func(t *testing.T) {
		env := setupTestService(t, nil)
		_, err := env.svc.PublishContent(ctx, simplecms.PublishContentRequest{ContentID: env.content.ID})
		require.NoError(t, err)

		reloaded, err := env.svc.GetContent(ctx, env.content.ID, simplecms.FetchHistory())
		require.NoError(t, err)
		require.Len(t, reloaded.History, 1)

		_, err = env.svc.PublishContent(ctx, simplecms.PublishContentRequest{ContentID: reloaded.History[0].ID})
		assert.ErrorIs(t, err, simplecms.ErrInvalidContentState)
	})

	t.Run("NotFound", func(t *testing.T) {
		env := setupTestService(t, nil)
		_, err := env.svc.PublishContent(ctx, simplecms.PublishContentRequest{ContentID: uuid.New()})
		assert.ErrorIs(t, err, simplecms.ErrNotFound)
	})
}
