package simplecms

import "github.com/google/uuid"

// Request/Response DTOs

// CreatePageRequest contains parameters for creating a page
type CreatePageRequest struct {
	Title   string
	PageURL string
}

// CreateRegionRequest contains parameters for creating a region
type CreateRegionRequest struct {
	RegionIdentifier string
}

// CreateContentRequest contains parameters for creating the first version of
// a content.
type CreateContentRequest struct {
	Kind       ContentKind
	Name       string
	PreviewURL string
	// Status defaults to draft
	Status ContentStatus
	// RegionIDs declares child regions of a widget content
	RegionIDs     []uuid.UUID
	Options       []*ContentOption
	ChildContents []*ChildContent
}

// PublishContentRequest contains parameters for publishing a new version of a
// content. ExpectedVersion is the optimistic concurrency token the caller read.
type PublishContentRequest struct {
	ContentID       uuid.UUID
	ExpectedVersion int
	PublishedBy     string
	Name            *string
	PreviewURL      *string
}

// InsertContentToPageRequest contains parameters for placing a content into a
// page region. A nil or zero ParentPageContentID inserts at the top level.
type InsertContentToPageRequest struct {
	PageID              uuid.UUID
	RegionID            uuid.UUID
	ContentID           uuid.UUID
	ParentPageContentID *uuid.UUID
	IncludeChildRegions bool
}

// InsertContentToPageResult describes the placement created by
// InsertContentToPage. ContentType is empty when no accessor is registered
// for the content kind; Regions is only set when child regions were requested.
type InsertContentToPageResult struct {
	PageContentID      uuid.UUID              `json:"page_content_id"`
	ContentID          uuid.UUID              `json:"content_id"`
	RegionID           uuid.UUID              `json:"region_id"`
	PageID             uuid.UUID              `json:"page_id"`
	DesirableStatus    ContentStatus          `json:"desirable_status"`
	Title              string                 `json:"title"`
	ContentVersion     int                    `json:"content_version"`
	PageContentVersion int                    `json:"page_content_version"`
	ContentType        string                 `json:"content_type,omitempty"`
	Regions            []ChildRegionViewModel `json:"regions,omitempty"`
}
