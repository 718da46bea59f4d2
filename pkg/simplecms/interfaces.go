package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// FetchOption selects sub-collections loaded eagerly with a content.
type FetchOption func(*FetchOptions)

// FetchOptions is the resolved set of eager fetches.
type FetchOptions struct {
	Regions       bool
	Options       bool
	ChildContents bool
	History       bool
}

// FetchRegions loads ContentRegions together with their Region.
func FetchRegions() FetchOption {
	return func(o *FetchOptions) { o.Regions = true }
}

// FetchOptionsCollection loads ContentOptions.
func FetchOptionsCollection() FetchOption {
	return func(o *FetchOptions) { o.Options = true }
}

// FetchChildContents loads ChildContents with their options.
func FetchChildContents() FetchOption {
	return func(o *FetchOptions) { o.ChildContents = true }
}

// FetchHistory loads the archived versions of the content.
func FetchHistory() FetchOption {
	return func(o *FetchOptions) { o.History = true }
}

// FetchAll loads every sub-collection.
func FetchAll() FetchOption {
	return func(o *FetchOptions) {
		o.Regions = true
		o.Options = true
		o.ChildContents = true
		o.History = true
	}
}

// ResolveFetchOptions applies opts to an empty FetchOptions.
func ResolveFetchOptions(opts ...FetchOption) FetchOptions {
	var o FetchOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Store defines the read and write operations shared by a Repository and a
// UnitOfWork.
//
// Lookups of missing rows return an error matching ErrNotFound. Saving a
// PageContent whose (page, region, parent, order) is already taken returns
// an error matching ErrConcurrencyConflict. SaveContent updates an existing
// row only when its stored version equals content.Version, then increments
// content.Version; otherwise it returns ErrVersionMismatch.
type Store interface {
	// Page and region operations
	GetPage(ctx context.Context, id uuid.UUID) (*Page, error)
	SavePage(ctx context.Context, page *Page) error
	GetRegion(ctx context.Context, id uuid.UUID) (*Region, error)
	SaveRegion(ctx context.Context, region *Region) error

	// Content operations
	GetContent(ctx context.Context, id uuid.UUID, opts ...FetchOption) (*Content, error)
	SaveContent(ctx context.Context, content *Content) error

	// Placement operations
	GetPageContent(ctx context.Context, id uuid.UUID) (*PageContent, error)
	ListPageContents(ctx context.Context, filter PageContentFilter) ([]*PageContent, error)
	SavePageContent(ctx context.Context, pageContent *PageContent) error
}

// UnitOfWork is a Store bound to a single transaction. Rollback after Commit
// is a no-op.
type UnitOfWork interface {
	Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository defines the interface for page composition persistence
type Repository interface {
	Store
	// Begin opens a unit of work. Writes made through it become visible to
	// other readers only after Commit.
	Begin(ctx context.Context) (UnitOfWork, error)
}

// EventSink receives notifications after a transaction has committed.
// Errors returned by a sink are logged and never fail the operation.
type EventSink interface {
	// PageContentInserted is fired after a placement is committed
	PageContentInserted(ctx context.Context, pageContent *PageContent) error

	// ContentPublished is fired after a new content version is committed
	ContentPublished(ctx context.Context, content *Content) error
}

// ChildRegionResolver describes the child regions of a widget content.
type ChildRegionResolver interface {
	GetChildRegionViewModels(ctx context.Context, content *Content) ([]ChildRegionViewModel, error)
}

// Locker serialises work on a key across goroutines or processes.
// The returned unlock function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
