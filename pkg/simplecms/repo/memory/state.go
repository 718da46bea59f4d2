package memory

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// orderKey mirrors the unique placement index of the SQL backends.
type orderKey struct {
	pageID   uuid.UUID
	regionID uuid.UUID
	parentID uuid.UUID
	order    int
}

func orderKeyOf(pc *simplecms.PageContent) orderKey {
	key := orderKey{pageID: pc.PageID, regionID: pc.RegionID, order: pc.Order}
	if pc.ParentID != nil {
		key.parentID = *pc.ParentID
	}
	return key
}

// state holds committed rows. Rows and slices stored in the maps are never
// mutated in place, so a shallow clone of the maps is an isolated snapshot.
type state struct {
	pages          map[uuid.UUID]*simplecms.Page
	regions        map[uuid.UUID]*simplecms.Region
	contents       map[uuid.UUID]*simplecms.Content
	options        map[uuid.UUID][]*simplecms.ContentOption
	contentRegions map[uuid.UUID][]*simplecms.ContentRegion
	children       map[uuid.UUID][]*simplecms.ChildContent
	pageContents   map[uuid.UUID]*simplecms.PageContent
	orders         map[orderKey]uuid.UUID
}

func newState() *state {
	return &state{
		pages:          make(map[uuid.UUID]*simplecms.Page),
		regions:        make(map[uuid.UUID]*simplecms.Region),
		contents:       make(map[uuid.UUID]*simplecms.Content),
		options:        make(map[uuid.UUID][]*simplecms.ContentOption),
		contentRegions: make(map[uuid.UUID][]*simplecms.ContentRegion),
		children:       make(map[uuid.UUID][]*simplecms.ChildContent),
		pageContents:   make(map[uuid.UUID]*simplecms.PageContent),
		orders:         make(map[orderKey]uuid.UUID),
	}
}

func (st *state) clone() *state {
	return &state{
		pages:          cloneMap(st.pages),
		regions:        cloneMap(st.regions),
		contents:       cloneMap(st.contents),
		options:        cloneMap(st.options),
		contentRegions: cloneMap(st.contentRegions),
		children:       cloneMap(st.children),
		pageContents:   cloneMap(st.pageContents),
		orders:         cloneMap(st.orders),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Reads

func (st *state) getPage(id uuid.UUID) (*simplecms.Page, error) {
	page, ok := st.pages[id]
	if !ok {
		return nil, simplecms.NewNotFoundError(simplecms.EntityPage, id)
	}
	pageCopy := *page
	return &pageCopy, nil
}

func (st *state) getRegion(id uuid.UUID) (*simplecms.Region, error) {
	region, ok := st.regions[id]
	if !ok {
		return nil, simplecms.NewNotFoundError(simplecms.EntityRegion, id)
	}
	regionCopy := *region
	return &regionCopy, nil
}

func (st *state) getContent(id uuid.UUID, opts simplecms.FetchOptions) (*simplecms.Content, error) {
	row, ok := st.contents[id]
	if !ok {
		return nil, simplecms.NewNotFoundError(simplecms.EntityContent, id)
	}
	content := copyContentRow(row)

	if opts.Options {
		content.ContentOptions = make([]*simplecms.ContentOption, 0, len(st.options[id]))
		for _, o := range st.options[id] {
			optionCopy := *o
			content.ContentOptions = append(content.ContentOptions, &optionCopy)
		}
	}
	if opts.Regions {
		content.ContentRegions = make([]*simplecms.ContentRegion, 0, len(st.contentRegions[id]))
		for _, cr := range st.contentRegions[id] {
			crCopy := *cr
			if region, ok := st.regions[cr.RegionID]; ok {
				regionCopy := *region
				crCopy.Region = &regionCopy
			}
			content.ContentRegions = append(content.ContentRegions, &crCopy)
		}
	}
	if opts.ChildContents {
		content.ChildContents = make([]*simplecms.ChildContent, 0, len(st.children[id]))
		for _, child := range st.children[id] {
			content.ChildContents = append(content.ChildContents, copyChild(child))
		}
		content.ChildContentsLoaded = true
	}
	if opts.History {
		content.History = []*simplecms.Content{}
		for _, row := range st.contents {
			if row.OriginalID != nil && *row.OriginalID == id {
				content.History = append(content.History, copyContentRow(row))
			}
		}
		sort.Slice(content.History, func(i, j int) bool {
			return content.History[i].CreatedAt.Before(content.History[j].CreatedAt)
		})
	}
	return content, nil
}

func (st *state) getPageContent(id uuid.UUID) (*simplecms.PageContent, error) {
	pc, ok := st.pageContents[id]
	if !ok {
		return nil, simplecms.NewNotFoundError(simplecms.EntityPageContent, id)
	}
	return copyPageContent(pc), nil
}

func (st *state) listPageContents(filter simplecms.PageContentFilter) []*simplecms.PageContent {
	result := []*simplecms.PageContent{}
	for _, pc := range st.pageContents {
		if filter.Matches(pc) {
			result = append(result, copyPageContent(pc))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Writes. Each write takes ownership of its argument.

func (st *state) putPage(page *simplecms.Page) {
	if page.Version == 0 {
		page.Version = 1
	}
	st.pages[page.ID] = page
}

func (st *state) putRegion(region *simplecms.Region) {
	if region.Version == 0 {
		region.Version = 1
	}
	st.regions[region.ID] = region
}

// putContent stores the scalar row and any non-nil collection of content.
// It returns the stored version.
func (st *state) putContent(content *simplecms.Content) (int, error) {
	if existing, ok := st.contents[content.ID]; ok {
		if existing.Version != content.Version {
			return 0, fmt.Errorf("%w: content %s stored version %d, given %d",
				simplecms.ErrVersionMismatch, content.ID, existing.Version, content.Version)
		}
		content.Version++
	} else if content.Version == 0 {
		content.Version = 1
	}

	if content.ContentOptions != nil {
		options := make([]*simplecms.ContentOption, 0, len(content.ContentOptions))
		for _, o := range content.ContentOptions {
			optionCopy := *o
			optionCopy.ContentID = content.ID
			options = append(options, &optionCopy)
		}
		st.options[content.ID] = options
	}
	if content.ContentRegions != nil {
		regions := make([]*simplecms.ContentRegion, 0, len(content.ContentRegions))
		for _, cr := range content.ContentRegions {
			if _, ok := st.regions[cr.RegionID]; !ok {
				return 0, simplecms.NewNotFoundError(simplecms.EntityRegion, cr.RegionID)
			}
			crCopy := *cr
			crCopy.ContentID = content.ID
			crCopy.Region = nil
			regions = append(regions, &crCopy)
		}
		st.contentRegions[content.ID] = regions
	}
	if content.ChildContents != nil {
		children := make([]*simplecms.ChildContent, 0, len(content.ChildContents))
		for _, child := range content.ChildContents {
			childCopy := copyChild(child)
			childCopy.ParentID = content.ID
			children = append(children, childCopy)
		}
		st.children[content.ID] = children
	}

	st.contents[content.ID] = copyContentRow(content)
	return content.Version, nil
}

func (st *state) putPageContent(pc *simplecms.PageContent) error {
	if _, ok := st.pageContents[pc.ID]; ok {
		return fmt.Errorf("%w: page content %s already exists", simplecms.ErrConcurrencyConflict, pc.ID)
	}
	if _, ok := st.pages[pc.PageID]; !ok {
		return simplecms.NewNotFoundError(simplecms.EntityPage, pc.PageID)
	}
	if _, ok := st.regions[pc.RegionID]; !ok {
		return simplecms.NewNotFoundError(simplecms.EntityRegion, pc.RegionID)
	}
	if _, ok := st.contents[pc.ContentID]; !ok {
		return simplecms.NewNotFoundError(simplecms.EntityContent, pc.ContentID)
	}
	if pc.ParentID != nil {
		if _, ok := st.pageContents[*pc.ParentID]; !ok {
			return simplecms.NewNotFoundError(simplecms.EntityPageContent, *pc.ParentID)
		}
	}

	key := orderKeyOf(pc)
	if holder, taken := st.orders[key]; taken {
		return fmt.Errorf("%w: order %d already taken by page content %s",
			simplecms.ErrConcurrencyConflict, pc.Order, holder)
	}
	if pc.Version == 0 {
		pc.Version = 1
	}
	st.pageContents[pc.ID] = pc
	st.orders[key] = pc.ID
	return nil
}

// Copies

func copyContentRow(c *simplecms.Content) *simplecms.Content {
	row := &simplecms.Content{
		ID:              c.ID,
		Kind:            c.Kind,
		Name:            c.Name,
		PreviewURL:      c.PreviewURL,
		PublishedByUser: c.PublishedByUser,
		Status:          c.Status,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.PublishedOn != nil {
		t := *c.PublishedOn
		row.PublishedOn = &t
	}
	if c.OriginalID != nil {
		id := *c.OriginalID
		row.OriginalID = &id
	}
	return row
}

func copyChild(child *simplecms.ChildContent) *simplecms.ChildContent {
	childCopy := *child
	childCopy.Options = make([]*simplecms.ChildContentOption, 0, len(child.Options))
	for _, o := range child.Options {
		optionCopy := *o
		optionCopy.ChildContentID = child.ID
		childCopy.Options = append(childCopy.Options, &optionCopy)
	}
	return &childCopy
}

func copyPageContent(pc *simplecms.PageContent) *simplecms.PageContent {
	pcCopy := *pc
	if pc.ParentID != nil {
		id := *pc.ParentID
		pcCopy.ParentID = &id
	}
	return &pcCopy
}

// copyContent deep copies c including its collections.
func copyContent(c *simplecms.Content) *simplecms.Content {
	out := copyContentRow(c)
	if c.ContentOptions != nil {
		out.ContentOptions = make([]*simplecms.ContentOption, 0, len(c.ContentOptions))
		for _, o := range c.ContentOptions {
			optionCopy := *o
			out.ContentOptions = append(out.ContentOptions, &optionCopy)
		}
	}
	if c.ContentRegions != nil {
		out.ContentRegions = make([]*simplecms.ContentRegion, 0, len(c.ContentRegions))
		for _, cr := range c.ContentRegions {
			crCopy := *cr
			out.ContentRegions = append(out.ContentRegions, &crCopy)
		}
	}
	if c.ChildContents != nil {
		out.ChildContents = make([]*simplecms.ChildContent, 0, len(c.ChildContents))
		for _, child := range c.ChildContents {
			out.ChildContents = append(out.ChildContents, copyChild(child))
		}
	}
	return out
}
