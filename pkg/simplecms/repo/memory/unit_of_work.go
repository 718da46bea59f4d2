package memory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

var errUnitOfWorkDone = errors.New("unit of work already committed or rolled back")

// unitOfWork reads and writes a private snapshot and records each write.
// Commit replays the writes against the state committed at that moment, so
// conflicts with units of work committed in between are detected there.
type unitOfWork struct {
	repo  *Repository
	state *state
	ops   []func(st *state) error
	done  bool
}

func (u *unitOfWork) record(op func(st *state) error) error {
	if u.done {
		return errUnitOfWorkDone
	}
	if err := op(u.state); err != nil {
		return err
	}
	u.ops = append(u.ops, op)
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return errUnitOfWorkDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.done = true
	return u.repo.apply(func(st *state) error {
		for _, op := range u.ops {
			if err := op(st); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	u.done = true
	u.ops = nil
	return nil
}

// Page and region operations

func (u *unitOfWork) GetPage(ctx context.Context, id uuid.UUID) (*simplecms.Page, error) {
	return u.state.getPage(id)
}

func (u *unitOfWork) SavePage(ctx context.Context, page *simplecms.Page) error {
	saved := *page
	err := u.record(func(st *state) error {
		pageCopy := saved
		st.putPage(&pageCopy)
		return nil
	})
	if err == nil && page.Version == 0 {
		page.Version = 1
	}
	return err
}

func (u *unitOfWork) GetRegion(ctx context.Context, id uuid.UUID) (*simplecms.Region, error) {
	return u.state.getRegion(id)
}

func (u *unitOfWork) SaveRegion(ctx context.Context, region *simplecms.Region) error {
	saved := *region
	err := u.record(func(st *state) error {
		regionCopy := saved
		st.putRegion(&regionCopy)
		return nil
	})
	if err == nil && region.Version == 0 {
		region.Version = 1
	}
	return err
}

// Content operations

func (u *unitOfWork) GetContent(ctx context.Context, id uuid.UUID, opts ...simplecms.FetchOption) (*simplecms.Content, error) {
	return u.state.getContent(id, simplecms.ResolveFetchOptions(opts...))
}

func (u *unitOfWork) SaveContent(ctx context.Context, content *simplecms.Content) error {
	saved := copyContent(content)
	var version int
	err := u.record(func(st *state) error {
		var err error
		version, err = st.putContent(copyContent(saved))
		return err
	})
	if err == nil {
		content.Version = version
	}
	return err
}

// Placement operations

func (u *unitOfWork) GetPageContent(ctx context.Context, id uuid.UUID) (*simplecms.PageContent, error) {
	return u.state.getPageContent(id)
}

func (u *unitOfWork) ListPageContents(ctx context.Context, filter simplecms.PageContentFilter) ([]*simplecms.PageContent, error) {
	return u.state.listPageContents(filter), nil
}

func (u *unitOfWork) SavePageContent(ctx context.Context, pageContent *simplecms.PageContent) error {
	saved := copyPageContent(pageContent)
	err := u.record(func(st *state) error {
		return st.putPageContent(copyPageContent(saved))
	})
	if err == nil && pageContent.Version == 0 {
		pageContent.Version = 1
	}
	return err
}
