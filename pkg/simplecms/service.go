package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-cms library
type Service interface {
	// Page and region operations
	CreatePage(ctx context.Context, req CreatePageRequest) (*Page, error)
	GetPage(ctx context.Context, id uuid.UUID) (*Page, error)
	CreateRegion(ctx context.Context, req CreateRegionRequest) (*Region, error)

	// Content operations
	CreateContent(ctx context.Context, req CreateContentRequest) (*Content, error)
	GetContent(ctx context.Context, id uuid.UUID, opts ...FetchOption) (*Content, error)
	PublishContent(ctx context.Context, req PublishContentRequest) (*Content, error)

	// Page composition operations
	InsertContentToPage(ctx context.Context, req InsertContentToPageRequest) (*InsertContentToPageResult, error)
	GetPageContent(ctx context.Context, id uuid.UUID) (*PageContent, error)
	ListPageContents(ctx context.Context, filter PageContentFilter) ([]*PageContent, error)
	GetNextOrderNumber(ctx context.Context, pageID uuid.UUID, parentPageContentID *uuid.UUID) (int, error)
}
