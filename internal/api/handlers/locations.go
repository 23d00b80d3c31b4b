package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// LocationRepo is the location storage used by LocationHandler.
type LocationRepo interface {
	Create(ctx context.Context, loc *types.Location) error
	GetByID(ctx context.Context, id string) (*types.Location, error)
	List(ctx context.Context, filter types.ListFilter) ([]*types.Location, types.PageInfo, error)
	Update(ctx context.Context, loc *types.Location) error
	Delete(ctx context.Context, id string) error
}

// AssetCounter reports how many live assets a location holds.
type AssetCounter interface {
	CountByLocation(ctx context.Context, locationID string) (int, error)
}

// CreateLocationRequest is the body of POST /v1/locations.
type CreateLocationRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Address     string `json:"address" validate:"max=500"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateLocationRequest is the body of PATCH /v1/locations/{id}. Omitted
// fields are left unchanged.
type UpdateLocationRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// LocationHandler serves /v1/locations.
type LocationHandler struct {
	locations LocationRepo
	assets    AssetCounter
	guard     RoleGuard
	validator *core.Validator
	logger    *slog.Logger
}

// NewLocationHandler creates a LocationHandler.
func NewLocationHandler(locations LocationRepo, assets AssetCounter, guard RoleGuard, v *core.Validator, l *slog.Logger) *LocationHandler {
	return &LocationHandler{
		locations: locations,
		assets:    assets,
		guard:     guard,
		validator: v,
		logger:    defaultLogger(l),
	}
}

// RegisterRoutes mounts the location routes. Reads are open to every role;
// writes need admin.
func (h *LocationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	admin := h.guard.with(r, types.RoleAdmin)
	admin.Post("/", h.Create)
	admin.Patch("/{id}", h.Update)
	admin.Delete("/{id}", h.Delete)
}

// List handles GET /v1/locations.
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := core.ParseListFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	locs, info, err := h.locations.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Page(w, r, locs, info)
}

// Get handles GET /v1/locations/{id}.
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locations.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, loc)
}

// Create handles POST /v1/locations.
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	loc := &types.Location{
		ID:          types.NewLocationID(),
		Name:        req.Name,
		Address:     req.Address,
		Description: req.Description,
	}
	if err := h.locations.Create(r.Context(), loc); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "location created", "location_id", loc.ID)
	core.Data(w, r, http.StatusCreated, loc)
}

// Update handles PATCH /v1/locations/{id}.
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateLocationRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	loc, err := h.locations.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Name != nil {
		loc.Name = *req.Name
	}
	if req.Address != nil {
		loc.Address = *req.Address
	}
	if req.Description != nil {
		loc.Description = *req.Description
	}
	if err := h.locations.Update(r.Context(), loc); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, loc)
}

// Delete handles DELETE /v1/locations/{id}. A location that still holds
// live assets cannot be removed.
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if _, err := h.locations.GetByID(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	n, err := h.assets.CountByLocation(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if n > 0 {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeConflictLocationInUse,
			"location still holds assets", nil, map[string]any{"asset_count": n}))
		return
	}

	if err := h.locations.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "location deleted", "location_id", id)
	w.WriteHeader(http.StatusNoContent)
}
