package simplecms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InsertContentToPage places a content into a region of a page.
//
// Referenced entities are validated, and requested child regions resolved,
// before any transaction opens, so a failure there leaves no placement. The
// order is computed and the placement saved inside one unit of work,
// serialised per (page, parent) by the service Locker; a colliding order
// retries the whole unit of work up to the configured limit. The insert
// notification is sent only after commit and its failure does not affect the
// result.
func (s *service) InsertContentToPage(ctx context.Context, req InsertContentToPageRequest) (*InsertContentToPageResult, error) {
	content, parentID, err := s.resolveInsertTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	var regions []ChildRegionViewModel
	if req.IncludeChildRegions {
		regions, err = s.childRegions.GetChildRegionViewModels(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve child regions: %w", err)
		}
	}

	pageContent, err := s.insertPlacement(ctx, req, parentID)
	if err != nil {
		s.logger.Warn("insert content to page failed",
			zap.String("page_id", req.PageID.String()),
			zap.String("content_id", req.ContentID.String()),
			zap.Error(err))
		return nil, err
	}

	s.notify(ctx, "page content inserted", func(ctx context.Context) error {
		return s.eventSink.PageContentInserted(ctx, pageContent)
	})

	result := &InsertContentToPageResult{
		PageContentID:      pageContent.ID,
		ContentID:          content.ID,
		RegionID:           req.RegionID,
		PageID:             req.PageID,
		DesirableStatus:    content.Status,
		Title:              content.Name,
		ContentVersion:     content.Version,
		PageContentVersion: pageContent.Version,
		Regions:            regions,
	}
	if accessor, ok := s.projections.Resolve(content); ok {
		result.ContentType = accessor.ContentWrapperType()
	}

	return result, nil
}

// resolveInsertTargets loads the entities referenced by req and returns the
// content together with the normalised parent placement id.
func (s *service) resolveInsertTargets(ctx context.Context, req InsertContentToPageRequest) (*Content, *uuid.UUID, error) {
	if _, err := s.repository.GetPage(ctx, req.PageID); err != nil {
		return nil, nil, wrapPersistence("get page", err)
	}
	if _, err := s.repository.GetRegion(ctx, req.RegionID); err != nil {
		return nil, nil, wrapPersistence("get region", err)
	}

	content, err := s.repository.GetContent(ctx, req.ContentID, FetchRegions())
	if err != nil {
		return nil, nil, wrapPersistence("get content", err)
	}
	if content.ContentRegions == nil {
		return nil, nil, &InvalidContentStateError{ContentID: content.ID, Reason: "content regions were not loaded"}
	}
	if !content.Status.CanBePlaced() {
		return nil, nil, &InvalidContentStateError{
			ContentID: content.ID,
			Reason:    fmt.Sprintf("content with status %q cannot be placed", content.Status),
		}
	}

	parentID := normalizeParent(req.ParentPageContentID)
	if parentID != nil {
		parent, err := s.repository.GetPageContent(ctx, *parentID)
		if err != nil {
			return nil, nil, wrapPersistence("get parent page content", err)
		}
		if parent.PageID != req.PageID {
			return nil, nil, &InvalidContentStateError{
				ContentID: content.ID,
				Reason:    fmt.Sprintf("parent placement %s belongs to page %s", parent.ID, parent.PageID),
			}
		}
	}

	return content, parentID, nil
}

// insertPlacement computes the order and saves the placement, retrying on
// order collisions.
func (s *service) insertPlacement(ctx context.Context, req InsertContentToPageRequest, parentID *uuid.UUID) (*PageContent, error) {
	unlock, err := s.locker.Lock(ctx, PlacementKey(req.PageID, parentID))
	if err != nil {
		return nil, wrapPersistence("acquire placement lock", err)
	}
	defer unlock()

	var lastConflict error
	var lastOrder int
	for attempt := 1; attempt <= s.maxInsertRetries+1; attempt++ {
		var pageContent *PageContent
		err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
			order, err := s.ordering.GetNextOrderNumber(ctx, uow, req.PageID, parentID)
			if err != nil {
				return wrapPersistence("next order number", err)
			}
			lastOrder = order

			now := s.now()
			pc := &PageContent{
				ID:        uuid.New(),
				PageID:    req.PageID,
				RegionID:  req.RegionID,
				ContentID: req.ContentID,
				ParentID:  copyID(parentID),
				Order:     order,
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := uow.SavePageContent(ctx, pc); err != nil {
				return wrapPersistence("save page content", err)
			}
			pageContent = pc
			return nil
		})
		if err == nil {
			return pageContent, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return nil, err
		}

		lastConflict = err
		s.logger.Debug("placement order conflict, retrying",
			zap.String("page_id", req.PageID.String()),
			zap.Int("order", lastOrder),
			zap.Int("attempt", attempt))
	}

	return nil, &ConcurrencyConflictError{
		PageID:   req.PageID,
		RegionID: req.RegionID,
		ParentID: parentID,
		Order:    lastOrder,
		Attempts: s.maxInsertRetries + 1,
		Err:      lastConflict,
	}
}
