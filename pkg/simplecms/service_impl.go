package simplecms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	memorylock "github.com/tendant/simple-cms/pkg/simplecms/lock/memory"
)

// Defaults applied by New.
const (
	DefaultMaxInsertRetries = 3
	DefaultTxTimeout        = 30 * time.Second
)

// service implements the Service interface
type service struct {
	repository       Repository
	eventSink        EventSink
	projections      *ProjectionResolver
	childRegions     ChildRegionResolver
	ordering         OrderingService
	locker           Locker
	logger           *zap.Logger
	orderBase        int
	maxInsertRetries int
	txTimeout        time.Duration
	now              func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithProjectionResolver sets the resolver used to describe content wrappers
func WithProjectionResolver(resolver *ProjectionResolver) Option {
	return func(s *service) {
		s.projections = resolver
	}
}

// WithChildRegionResolver sets the resolver used to expand child regions
func WithChildRegionResolver(resolver ChildRegionResolver) Option {
	return func(s *service) {
		s.childRegions = resolver
	}
}

// WithOrderingService replaces the default ordering service
func WithOrderingService(ordering OrderingService) Option {
	return func(s *service) {
		s.ordering = ordering
	}
}

// WithOrderBase sets the order given to the first placement of a scope
func WithOrderBase(base int) Option {
	return func(s *service) {
		s.orderBase = base
	}
}

// WithLocker sets the locker that serialises placement inserts
func WithLocker(locker Locker) Option {
	return func(s *service) {
		s.locker = locker
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *zap.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMaxInsertRetries bounds how often a conflicting insert is retried
func WithMaxInsertRetries(n int) Option {
	return func(s *service) {
		s.maxInsertRetries = n
	}
}

// WithTxTimeout bounds the duration of a unit of work. Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(s *service) {
		s.txTimeout = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		orderBase:        DefaultOrderBase,
		maxInsertRetries: DefaultMaxInsertRetries,
		txTimeout:        DefaultTxTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, ErrRepositoryRequired
	}
	if s.maxInsertRetries < 0 {
		return nil, fmt.Errorf("max insert retries must not be negative: %d", s.maxInsertRetries)
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.projections == nil {
		s.projections = NewDefaultProjectionResolver()
	}
	if s.childRegions == nil {
		s.childRegions = NewContentRegionResolver(s.repository)
	}
	if s.ordering == nil {
		s.ordering = NewOrderingService(s.orderBase)
	}
	if s.locker == nil {
		s.locker = memorylock.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	return s, nil
}

// inUnitOfWork runs fn inside a unit of work bounded by the service timeout.
// fn's error, or a failed commit, rolls the unit of work back.
func (s *service) inUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	uow, err := s.repository.Begin(ctx)
	if err != nil {
		return wrapPersistence("begin", err)
	}
	defer func() {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, uow); err != nil {
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		return wrapPersistence("commit", err)
	}
	return nil
}

// Page and region operations

func (s *service) CreatePage(ctx context.Context, req CreatePageRequest) (*Page, error) {
	now := s.now()
	page := &Page{
		ID:        uuid.New(),
		Title:     req.Title,
		PageURL:   req.PageURL,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.SavePage(ctx, page); err != nil {
		return nil, wrapPersistence("save page", err)
	}
	return page, nil
}

func (s *service) GetPage(ctx context.Context, id uuid.UUID) (*Page, error) {
	return s.repository.GetPage(ctx, id)
}

func (s *service) CreateRegion(ctx context.Context, req CreateRegionRequest) (*Region, error) {
	if req.RegionIdentifier == "" {
		return nil, fmt.Errorf("%w: region identifier is required", ErrInvalidRequest)
	}
	now := s.now()
	region := &Region{
		ID:               uuid.New(),
		RegionIdentifier: req.RegionIdentifier,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repository.SaveRegion(ctx, region); err != nil {
		return nil, wrapPersistence("save region", err)
	}
	return region, nil
}

// Content operations

func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (*Content, error) {
	status := req.Status
	if status == "" {
		status = ContentStatusDraft
	}
	if !status.CanBePlaced() {
		return nil, fmt.Errorf("%w: cannot create content with status %q", ErrInvalidContentState, status)
	}

	now := s.now()
	content := &Content{
		ID:             uuid.New(),
		Kind:           req.Kind,
		Name:           req.Name,
		PreviewURL:     req.PreviewURL,
		Status:         status,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ContentOptions: []*ContentOption{},
		ContentRegions: []*ContentRegion{},
		ChildContents:  []*ChildContent{},
	}
	if status == ContentStatusPublished {
		content.PublishedOn = &now
	}

	for _, o := range req.Options {
		option := o.Clone()
		option.ContentID = content.ID
		content.ContentOptions = append(content.ContentOptions, option)
	}
	for _, child := range req.ChildContents {
		// Reuse the clone semantics to rebind the child and its options.
		holder := (&Content{ChildContents: []*ChildContent{child}}).CopyDataTo(&Content{ID: content.ID}, true)
		content.ChildContents = append(content.ChildContents, holder.ChildContents...)
	}

	err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		for _, regionID := range req.RegionIDs {
			region, err := uow.GetRegion(ctx, regionID)
			if err != nil {
				return wrapPersistence("get region", err)
			}
			content.ContentRegions = append(content.ContentRegions, &ContentRegion{
				ID:        uuid.New(),
				ContentID: content.ID,
				RegionID:  region.ID,
				Region:    region,
			})
		}
		for _, child := range content.ChildContents {
			if _, err := uow.GetContent(ctx, child.ChildID); err != nil {
				return wrapPersistence("get child content", err)
			}
		}
		return wrapPersistence("save content", uow.SaveContent(ctx, content))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("content created",
		zap.String("content_id", content.ID.String()),
		zap.String("kind", string(content.Kind)))
	return content, nil
}

func (s *service) GetContent(ctx context.Context, id uuid.UUID, opts ...FetchOption) (*Content, error) {
	return s.repository.GetContent(ctx, id, opts...)
}

// PublishContent archives the current state of a content into its history and
// publishes the edited current version.
func (s *service) PublishContent(ctx context.Context, req PublishContentRequest) (*Content, error) {
	var published *Content
	err := s.inUnitOfWork(ctx, func(ctx context.Context, uow UnitOfWork) error {
		current, err := uow.GetContent(ctx, req.ContentID,
			FetchRegions(), FetchOptionsCollection(), FetchChildContents())
		if err != nil {
			return wrapPersistence("get content", err)
		}
		if current.Status == ContentStatusArchived {
			return &InvalidContentStateError{ContentID: current.ID, Reason: "archived versions cannot be published"}
		}
		if req.ExpectedVersion > 0 && current.Version != req.ExpectedVersion {
			return &ConcurrencyConflictError{Attempts: 1, Err: fmt.Errorf("%w: expected %d, found %d",
				ErrVersionMismatch, req.ExpectedVersion, current.Version)}
		}

		now := s.now()
		history := current.CreateHistoryItem(now)
		if err := uow.SaveContent(ctx, history); err != nil {
			return wrapPersistence("save history", err)
		}

		if req.Name != nil {
			current.Name = *req.Name
		}
		if req.PreviewURL != nil {
			current.PreviewURL = *req.PreviewURL
		}
		current.Status = ContentStatusPublished
		current.PublishedOn = &now
		current.PublishedByUser = req.PublishedBy
		current.UpdatedAt = now

		if err := uow.SaveContent(ctx, current); err != nil {
			if errors.Is(err, ErrVersionMismatch) {
				return &ConcurrencyConflictError{Attempts: 1, Err: err}
			}
			return wrapPersistence("save content", err)
		}
		published = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "content published", func(ctx context.Context) error {
		return s.eventSink.ContentPublished(ctx, published)
	})
	return published, nil
}

// Placement operations

func (s *service) GetPageContent(ctx context.Context, id uuid.UUID) (*PageContent, error) {
	return s.repository.GetPageContent(ctx, id)
}

func (s *service) ListPageContents(ctx context.Context, filter PageContentFilter) ([]*PageContent, error) {
	return s.repository.ListPageContents(ctx, filter)
}

func (s *service) GetNextOrderNumber(ctx context.Context, pageID uuid.UUID, parentPageContentID *uuid.UUID) (int, error) {
	return s.ordering.GetNextOrderNumber(ctx, s.repository, pageID, parentPageContentID)
}

// notify delivers a post-commit event. Failures are logged only.
func (s *service) notify(ctx context.Context, event string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event sink panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	if err := fn(ctx); err != nil {
		s.logger.Warn("event sink failed", zap.String("event", event), zap.Error(err))
	}
}
