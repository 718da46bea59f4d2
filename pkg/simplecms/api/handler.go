// Package api exposes the simple-cms service over HTTP using chi.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Handler serves pages, regions, contents and page compositions.
type Handler struct {
	service  simplecms.Service
	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler. A nil logger disables logging.
func NewHandler(service simplecms.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		logger:   logger,
		validate: newValidator(),
	}
}

// Routes returns the API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/pages", h.CreatePage)
	r.Get("/pages/{id}", h.GetPage)
	r.Post("/pages/{id}/contents", h.InsertContent)
	r.Get("/pages/{id}/contents", h.ListPageContents)
	r.Get("/pages/{id}/next-order", h.GetNextOrder)
	r.Get("/page-contents/{id}", h.GetPageContent)

	r.Post("/regions", h.CreateRegion)

	r.Post("/contents", h.CreateContent)
	r.Get("/contents/{id}", h.GetContent)
	r.Post("/contents/{id}/publish", h.PublishContent)

	return r
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Request bodies

// CreatePageRequest is the request body for creating a page
type CreatePageRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	PageURL string `json:"page_url" validate:"required,startswith=/"`
}

// CreateRegionRequest is the request body for creating a region
type CreateRegionRequest struct {
	RegionIdentifier string `json:"region_identifier" validate:"required,max=200"`
}

// ContentOptionRequest describes a content option
type ContentOptionRequest struct {
	Key          string `json:"key" validate:"required"`
	Type         string `json:"type" validate:"required,option_type"`
	DefaultValue string `json:"default_value"`
	IsDeletable  bool   `json:"is_deletable"`
}

// ChildContentOptionRequest describes an option of a child content assignment
type ChildContentOptionRequest struct {
	Key   string `json:"key" validate:"required"`
	Type  string `json:"type" validate:"required,option_type"`
	Value string `json:"value"`
}

// ChildContentRequest assigns a child content to a widget
type ChildContentRequest struct {
	ChildID              string                      `json:"child_id" validate:"required,uuid"`
	AssignmentIdentifier string                      `json:"assignment_identifier" validate:"omitempty,uuid"`
	Options              []ChildContentOptionRequest `json:"options" validate:"omitempty,dive"`
}

// CreateContentRequest is the request body for creating a content
type CreateContentRequest struct {
	Kind          string                 `json:"kind" validate:"required,content_kind"`
	Name          string                 `json:"name" validate:"required,max=200"`
	PreviewURL    string                 `json:"preview_url"`
	Status        string                 `json:"status" validate:"omitempty,oneof=draft published preview"`
	RegionIDs     []string               `json:"region_ids" validate:"omitempty,dive,uuid"`
	Options       []ContentOptionRequest `json:"options" validate:"omitempty,dive"`
	ChildContents []ChildContentRequest  `json:"child_contents" validate:"omitempty,dive"`
}

// PublishContentRequest is the request body for publishing a content
type PublishContentRequest struct {
	ExpectedVersion int     `json:"expected_version" validate:"gte=0"`
	PublishedBy     string  `json:"published_by" validate:"required"`
	Name            *string `json:"name" validate:"omitempty,max=200"`
	PreviewURL      *string `json:"preview_url"`
}

// InsertContentRequest is the request body for placing a content on a page
type InsertContentRequest struct {
	RegionID            string `json:"region_id" validate:"required,uuid"`
	ContentID           string `json:"content_id" validate:"required,uuid"`
	ParentPageContentID string `json:"parent_page_content_id" validate:"omitempty,uuid"`
	IncludeChildRegions bool   `json:"include_child_regions"`
}

// NextOrderResponse is the response body of the next order lookup
type NextOrderResponse struct {
	PageID   uuid.UUID  `json:"page_id"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Order    int        `json:"order"`
}

// Pages and regions

// CreatePage creates a page
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if !h.decode(w, r, &req) {
		return
	}

	page, err := h.service.CreatePage(r.Context(), simplecms.CreatePageRequest{Title: req.Title, PageURL: req.PageURL})
	if err != nil {
		h.writeError(w, r, "create page", err)
		return
	}

	h.logger.Info("page created", zap.String("page_id", page.ID.String()))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, page)
}

// GetPage retrieves a page by ID
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	page, err := h.service.GetPage(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get page", err)
		return
	}
	render.JSON(w, r, page)
}

// CreateRegion creates a region
func (h *Handler) CreateRegion(w http.ResponseWriter, r *http.Request) {
	var req CreateRegionRequest
	if !h.decode(w, r, &req) {
		return
	}

	region, err := h.service.CreateRegion(r.Context(), simplecms.CreateRegionRequest{RegionIdentifier: req.RegionIdentifier})
	if err != nil {
		h.writeError(w, r, "create region", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, region)
}

// Contents

// CreateContent creates the first version of a content
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if !h.decode(w, r, &req) {
		return
	}

	createReq := simplecms.CreateContentRequest{
		Kind:       simplecms.ContentKind(req.Kind),
		Name:       req.Name,
		PreviewURL: req.PreviewURL,
		Status:     simplecms.ContentStatus(req.Status),
	}
	for _, id := range req.RegionIDs {
		createReq.RegionIDs = append(createReq.RegionIDs, uuid.MustParse(id))
	}
	for _, o := range req.Options {
		createReq.Options = append(createReq.Options, &simplecms.ContentOption{
			ID:           uuid.New(),
			Key:          o.Key,
			Type:         simplecms.OptionType(o.Type),
			DefaultValue: o.DefaultValue,
			IsDeletable:  o.IsDeletable,
		})
	}
	for _, c := range req.ChildContents {
		child := &simplecms.ChildContent{
			ID:                   uuid.New(),
			ChildID:              uuid.MustParse(c.ChildID),
			AssignmentIdentifier: uuid.New(),
		}
		if c.AssignmentIdentifier != "" {
			child.AssignmentIdentifier = uuid.MustParse(c.AssignmentIdentifier)
		}
		for _, o := range c.Options {
			child.Options = append(child.Options, &simplecms.ChildContentOption{
				ID:    uuid.New(),
				Key:   o.Key,
				Type:  simplecms.OptionType(o.Type),
				Value: o.Value,
			})
		}
		createReq.ChildContents = append(createReq.ChildContents, child)
	}

	content, err := h.service.CreateContent(r.Context(), createReq)
	if err != nil {
		h.writeError(w, r, "create content", err)
		return
	}

	h.logger.Info("content created",
		zap.String("content_id", content.ID.String()),
		zap.String("kind", string(content.Kind)))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, content)
}

// GetContent retrieves a content. The include query parameter is a comma
// separated list of regions, options, children and history.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var opts []simplecms.FetchOption
	for _, include := range strings.Split(r.URL.Query().Get("include"), ",") {
		switch strings.TrimSpace(include) {
		case "":
		case "regions":
			opts = append(opts, simplecms.FetchRegions())
		case "options":
			opts = append(opts, simplecms.FetchOptionsCollection())
		case "children":
			opts = append(opts, simplecms.FetchChildContents())
		case "history":
			opts = append(opts, simplecms.FetchHistory())
		case "all":
			opts = append(opts, simplecms.FetchAll())
		default:
			h.writeBadRequest(w, r, "unknown include: "+include)
			return
		}
	}

	content, err := h.service.GetContent(r.Context(), id, opts...)
	if err != nil {
		h.writeError(w, r, "get content", err)
		return
	}
	render.JSON(w, r, content)
}

// PublishContent publishes the current version of a content
func (h *Handler) PublishContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req PublishContentRequest
	if !h.decode(w, r, &req) {
		return
	}

	content, err := h.service.PublishContent(r.Context(), simplecms.PublishContentRequest{
		ContentID:       id,
		ExpectedVersion: req.ExpectedVersion,
		PublishedBy:     req.PublishedBy,
		Name:            req.Name,
		PreviewURL:      req.PreviewURL,
	})
	if err != nil {
		h.writeError(w, r, "publish content", err)
		return
	}

	h.logger.Info("content published",
		zap.String("content_id", content.ID.String()),
		zap.Int("version", content.Version))
	render.JSON(w, r, content)
}

// Page composition

// InsertContent places a content into a region of the page
func (h *Handler) InsertContent(w http.ResponseWriter, r *http.Request) {
	pageID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req InsertContentRequest
	if !h.decode(w, r, &req) {
		return
	}

	insertReq := simplecms.InsertContentToPageRequest{
		PageID:              pageID,
		RegionID:            uuid.MustParse(req.RegionID),
		ContentID:           uuid.MustParse(req.ContentID),
		IncludeChildRegions: req.IncludeChildRegions,
	}
	if req.ParentPageContentID != "" {
		parentID := uuid.MustParse(req.ParentPageContentID)
		insertReq.ParentPageContentID = &parentID
	}

	result, err := h.service.InsertContentToPage(r.Context(), insertReq)
	if err != nil {
		h.writeError(w, r, "insert content to page", err)
		return
	}

	h.logger.Info("content inserted to page",
		zap.String("page_id", pageID.String()),
		zap.String("page_content_id", result.PageContentID.String()))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// ListPageContents lists placements of a page. Optional query parameters:
// region_id, parent_id, content_id and top_level.
func (h *Handler) ListPageContents(w http.ResponseWriter, r *http.Request) {
	pageID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	filter := simplecms.PageContentFilter{PageID: pageID}
	query := r.URL.Query()
	var err error
	if filter.RegionID, err = queryID(query.Get("region_id")); err != nil {
		h.writeBadRequest(w, r, "invalid region_id")
		return
	}
	if filter.ParentID, err = queryID(query.Get("parent_id")); err != nil {
		h.writeBadRequest(w, r, "invalid parent_id")
		return
	}
	if filter.ContentID, err = queryID(query.Get("content_id")); err != nil {
		h.writeBadRequest(w, r, "invalid content_id")
		return
	}
	if raw := query.Get("top_level"); raw != "" {
		if filter.TopLevelOnly, err = strconv.ParseBool(raw); err != nil {
			h.writeBadRequest(w, r, "invalid top_level")
			return
		}
	}

	pcs, err := h.service.ListPageContents(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, "list page contents", err)
		return
	}
	render.JSON(w, r, pcs)
}

// GetNextOrder returns the order the next placement in a scope would receive
func (h *Handler) GetNextOrder(w http.ResponseWriter, r *http.Request) {
	pageID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	parentID, err := queryID(r.URL.Query().Get("parent_id"))
	if err != nil {
		h.writeBadRequest(w, r, "invalid parent_id")
		return
	}

	order, err := h.service.GetNextOrderNumber(r.Context(), pageID, parentID)
	if err != nil {
		h.writeError(w, r, "get next order", err)
		return
	}
	render.JSON(w, r, NextOrderResponse{PageID: pageID, ParentID: parentID, Order: order})
}

// GetPageContent retrieves a placement by ID
func (h *Handler) GetPageContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	pc, err := h.service.GetPageContent(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get page content", err)
		return
	}
	render.JSON(w, r, pc)
}

// Helpers

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		h.writeBadRequest(w, r, "invalid JSON body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.writeBadRequest(w, r, validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeBadRequest(w, r, "invalid "+param+": "+raw)
		return uuid.Nil, false
	}
	return id, true
}

func queryID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Code: "bad_request", Message: message})
}

// writeError maps service errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, simplecms.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, simplecms.ErrConcurrencyConflict), errors.Is(err, simplecms.ErrVersionMismatch):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, simplecms.ErrInvalidContentState):
		status, code = http.StatusUnprocessableEntity, "invalid_content_state"
	case errors.Is(err, simplecms.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "bad_request"
	}

	fields := []zap.Field{zap.String("op", op), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Warn("request rejected", fields...)
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "an internal error occurred"
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}
