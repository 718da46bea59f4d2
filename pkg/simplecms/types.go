package simplecms

import (
	"time"

	"github.com/google/uuid"
)

// ContentStatus is the domain type for content lifecycle states.
type ContentStatus string

// Content status constants (typed).
const (
	ContentStatusPublished ContentStatus = "published"
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusArchived  ContentStatus = "archived"
	ContentStatusPreview   ContentStatus = "preview"
)

// IsValid reports whether s is a known content status.
func (s ContentStatus) IsValid() bool {
	switch s {
	case ContentStatusPublished, ContentStatusDraft, ContentStatusArchived, ContentStatusPreview:
		return true
	}
	return false
}

// CanBePlaced reports whether content in this status may be inserted into a page.
// Archived rows are history entries and never the current version.
func (s ContentStatus) CanBePlaced() bool {
	return s.IsValid() && s != ContentStatusArchived
}

// ContentKind identifies the runtime variant of a content. It selects the
// accessor used by the ProjectionResolver.
type ContentKind string

// Built-in content kinds.
const (
	ContentKindHTML         ContentKind = "html-content"
	ContentKindHTMLWidget   ContentKind = "html-widget"
	ContentKindServerWidget ContentKind = "server-widget"
	ContentKindBlogPost     ContentKind = "blog-post"
)

// OptionType is the value type of a content option.
type OptionType string

// Option type constants.
const (
	OptionTypeText     OptionType = "text"
	OptionTypeInteger  OptionType = "integer"
	OptionTypeFloat    OptionType = "float"
	OptionTypeDateTime OptionType = "datetime"
	OptionTypeBoolean  OptionType = "boolean"
	OptionTypeCustom   OptionType = "custom"
)

// Page is a page that hosts content placements.
type Page struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	PageURL   string    `json:"page_url"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Region is a named slot of a layout or widget that can hold placements.
type Region struct {
	ID               uuid.UUID `json:"id"`
	RegionIdentifier string    `json:"region_identifier"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Content is one version of a unit of page content.
//
// OriginalID is nil only for the first version of a chain. History holds the
// archived versions and is only populated when fetched with FetchHistory.
// ContentRegions, ContentOptions and ChildContents are nil unless fetched or
// populated by the caller; an empty non-nil slice means "loaded, none".
type Content struct {
	ID              uuid.UUID     `json:"id"`
	Kind            ContentKind   `json:"kind"`
	Name            string        `json:"name"`
	PreviewURL      string        `json:"preview_url,omitempty"`
	PublishedOn     *time.Time    `json:"published_on,omitempty"`
	PublishedByUser string        `json:"published_by_user,omitempty"`
	Status          ContentStatus `json:"status"`
	Version         int           `json:"version"`
	OriginalID      *uuid.UUID    `json:"original_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	History        []*Content       `json:"history,omitempty"`
	ContentOptions []*ContentOption `json:"content_options,omitempty"`
	ContentRegions []*ContentRegion `json:"content_regions,omitempty"`
	ChildContents  []*ChildContent  `json:"child_contents,omitempty"`
	PageContents   []*PageContent   `json:"page_contents,omitempty"`

	// ChildContentsLoaded is true when ChildContents came from storage and
	// false when they were populated in memory.
	ChildContentsLoaded bool `json:"-"`
}

// ContentRegion binds a content to a region declared inside it.
type ContentRegion struct {
	ID        uuid.UUID `json:"id"`
	ContentID uuid.UUID `json:"content_id"`
	RegionID  uuid.UUID `json:"region_id"`
	Region    *Region   `json:"region,omitempty"`
}

// ContentOption is a key/value setting attached to a content.
type ContentOption struct {
	ID           uuid.UUID  `json:"id"`
	ContentID    uuid.UUID  `json:"content_id"`
	Key          string     `json:"key"`
	Type         OptionType `json:"type"`
	DefaultValue string     `json:"default_value,omitempty"`
	IsDeletable  bool       `json:"is_deletable"`
}

// ChildContent binds a parent content to a nested child content.
// AssignmentIdentifier distinguishes several children of the same type.
type ChildContent struct {
	ID                   uuid.UUID             `json:"id"`
	ParentID             uuid.UUID             `json:"parent_id"`
	ChildID              uuid.UUID             `json:"child_id"`
	AssignmentIdentifier uuid.UUID             `json:"assignment_identifier"`
	Options              []*ChildContentOption `json:"options,omitempty"`
}

// ChildContentOption overrides an option value for one child binding.
type ChildContentOption struct {
	ID             uuid.UUID  `json:"id"`
	ChildContentID uuid.UUID  `json:"child_content_id"`
	Key            string     `json:"key"`
	Type           OptionType `json:"type"`
	Value          string     `json:"value,omitempty"`
	IsDeletable    bool       `json:"is_deletable"`
}

// PageContent is a placement of a content version inside a region of a page,
// optionally nested under a parent placement.
type PageContent struct {
	ID        uuid.UUID  `json:"id"`
	PageID    uuid.UUID  `json:"page_id"`
	RegionID  uuid.UUID  `json:"region_id"`
	ContentID uuid.UUID  `json:"content_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Order     int        `json:"order"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ChildRegionViewModel describes a region declared inside a widget content.
type ChildRegionViewModel struct {
	RegionID         uuid.UUID `json:"region_id"`
	RegionIdentifier string    `json:"region_identifier"`
}

// PageContentFilter selects placements in ListPageContents.
//
// PageID is required. When TopLevelOnly is set only placements without a
// parent match; otherwise ParentID (when non-nil) restricts to its children.
type PageContentFilter struct {
	PageID       uuid.UUID
	RegionID     *uuid.UUID
	ParentID     *uuid.UUID
	TopLevelOnly bool
	ContentID    *uuid.UUID
}

// Matches reports whether pc satisfies the filter.
func (f PageContentFilter) Matches(pc *PageContent) bool {
	if pc.PageID != f.PageID {
		return false
	}
	if f.RegionID != nil && pc.RegionID != *f.RegionID {
		return false
	}
	if f.ContentID != nil && pc.ContentID != *f.ContentID {
		return false
	}
	if f.TopLevelOnly {
		return pc.ParentID == nil
	}
	if f.ParentID != nil {
		return pc.ParentID != nil && *pc.ParentID == *f.ParentID
	}
	return true
}

// PlacementKey identifies the sibling scope of a placement for ordering and
// locking. A nil or zero parent is the top level.
func PlacementKey(pageID uuid.UUID, parentID *uuid.UUID) string {
	if isNilParent(parentID) {
		return "page:" + pageID.String() + "/parent:root"
	}
	return "page:" + pageID.String() + "/parent:" + parentID.String()
}

func isNilParent(parentID *uuid.UUID) bool {
	return parentID == nil || *parentID == uuid.Nil
}

// normalizeParent maps the zero uuid sentinel to nil.
func normalizeParent(parentID *uuid.UUID) *uuid.UUID {
	if isNilParent(parentID) {
		return nil
	}
	id := *parentID
	return &id
}
