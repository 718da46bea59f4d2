// Package memory implements simplecms.Repository in process memory.
//
// Every write, whether made directly or through a unit of work, is applied to
// a clone of the committed state and swapped in only when it succeeds, so a
// failed write leaves no trace. Returned entities are copies.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Repository implements simplecms.Repository using in-memory storage
type Repository struct {
	mu    sync.RWMutex
	state *state
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{state: newState()}
}

var _ simplecms.Repository = (*Repository)(nil)

// apply runs fn against a clone of the committed state and commits the clone
// when fn succeeds.
func (r *Repository) apply(fn func(st *state) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	r.state = next
	return nil
}

func (r *Repository) snapshot() *state {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Begin opens a unit of work on a snapshot of the committed state.
func (r *Repository) Begin(ctx context.Context) (simplecms.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unitOfWork{repo: r, state: r.snapshot().clone()}, nil
}

// Page and region operations

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplecms.Page, error) {
	return r.snapshot().getPage(id)
}

func (r *Repository) SavePage(ctx context.Context, page *simplecms.Page) error {
	pageCopy := *page
	err := r.apply(func(st *state) error {
		st.putPage(&pageCopy)
		return nil
	})
	if err == nil {
		page.Version = pageCopy.Version
	}
	return err
}

func (r *Repository) GetRegion(ctx context.Context, id uuid.UUID) (*simplecms.Region, error) {
	return r.snapshot().getRegion(id)
}

func (r *Repository) SaveRegion(ctx context.Context, region *simplecms.Region) error {
	regionCopy := *region
	err := r.apply(func(st *state) error {
		st.putRegion(&regionCopy)
		return nil
	})
	if err == nil {
		region.Version = regionCopy.Version
	}
	return err
}

// Content operations

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID, opts ...simplecms.FetchOption) (*simplecms.Content, error) {
	return r.snapshot().getContent(id, simplecms.ResolveFetchOptions(opts...))
}

func (r *Repository) SaveContent(ctx context.Context, content *simplecms.Content) error {
	var version int
	err := r.apply(func(st *state) error {
		var err error
		version, err = st.putContent(copyContent(content))
		return err
	})
	if err == nil {
		content.Version = version
	}
	return err
}

// Placement operations

func (r *Repository) GetPageContent(ctx context.Context, id uuid.UUID) (*simplecms.PageContent, error) {
	return r.snapshot().getPageContent(id)
}

func (r *Repository) ListPageContents(ctx context.Context, filter simplecms.PageContentFilter) ([]*simplecms.PageContent, error) {
	return r.snapshot().listPageContents(filter), nil
}

func (r *Repository) SavePageContent(ctx context.Context, pageContent *simplecms.PageContent) error {
	pcCopy := copyPageContent(pageContent)
	err := r.apply(func(st *state) error {
		return st.putPageContent(pcCopy)
	})
	if err == nil {
		pageContent.Version = pcCopy.Version
	}
	return err
}
