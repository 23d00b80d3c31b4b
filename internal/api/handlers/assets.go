package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// AssetRepo is the asset storage used by AssetHandler.
type AssetRepo interface {
	Create(ctx context.Context, asset *types.Asset) error
	GetByID(ctx context.Context, id string) (*types.Asset, error)
	List(ctx context.Context, filter types.AssetFilter) ([]*types.Asset, types.PageInfo, error)
	Update(ctx context.Context, asset *types.Asset) error
	Delete(ctx context.Context, id string) error
}

// LocationLookup resolves a location by ID.
type LocationLookup interface {
	GetByID(ctx context.Context, id string) (*types.Location, error)
}

const assetStatuses = "operational needs_service out_of_service retired"

// CreateAssetRequest is the body of POST /v1/assets.
type CreateAssetRequest struct {
	LocationID      string  `json:"location_id" validate:"required"`
	Name            string  `json:"name" validate:"required,max=200"`
	Category        string  `json:"category" validate:"max=100"`
	SerialNumber    string  `json:"serial_number" validate:"max=100"`
	Status          string  `json:"status" validate:"omitempty,oneof=operational needs_service out_of_service retired"`
	PurchaseDate    *string `json:"purchase_date" validate:"omitempty,date"`
	WarrantyExpires *string `json:"warranty_expires" validate:"omitempty,date"`
	Notes           string  `json:"notes" validate:"max=4000"`
}

// UpdateAssetRequest is the body of PATCH /v1/assets/{id}. An empty date
// string clears the date.
type UpdateAssetRequest struct {
	LocationID      *string `json:"location_id" validate:"omitempty,min=1"`
	Name            *string `json:"name" validate:"omitempty,min=1,max=200"`
	Category        *string `json:"category" validate:"omitempty,max=100"`
	SerialNumber    *string `json:"serial_number" validate:"omitempty,max=100"`
	Status          *string `json:"status" validate:"omitempty,oneof=operational needs_service out_of_service retired"`
	PurchaseDate    *string `json:"purchase_date" validate:"omitempty,date"`
	WarrantyExpires *string `json:"warranty_expires" validate:"omitempty,date"`
	Notes           *string `json:"notes" validate:"omitempty,max=4000"`
}

// AssetHandler serves /v1/assets.
type AssetHandler struct {
	assets    AssetRepo
	locations LocationLookup
	guard     RoleGuard
	validator *core.Validator
	logger    *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets AssetRepo, locations LocationLookup, guard RoleGuard, v *core.Validator, l *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets:    assets,
		locations: locations,
		guard:     guard,
		validator: v,
		logger:    defaultLogger(l),
	}
}

// RegisterRoutes mounts the asset routes. Writes need maintenance or admin.
func (h *AssetHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	staff := h.guard.with(r, types.RoleMaintenance)
	staff.Post("/", h.Create)
	staff.Patch("/{id}", h.Update)
	staff.Delete("/{id}", h.Delete)
}

// List handles GET /v1/assets?location_id=&status=.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := core.ParseListFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	filter := types.AssetFilter{
		ListFilter: page,
		LocationID: r.URL.Query().Get("location_id"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		if !validAssetStatus(s) {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
				"status must be one of: "+assetStatuses, nil, map[string]any{"field": "status"}))
			return
		}
		filter.Status = types.AssetStatus(s)
	}

	assets, info, err := h.assets.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Page(w, r, assets, info)
}

// Get handles GET /v1/assets/{id}.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset, err := h.assets.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, asset)
}

// Create handles POST /v1/assets. The location must exist.
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}
	if _, err := h.locations.GetByID(r.Context(), req.LocationID); err != nil {
		core.Error(w, r, err)
		return
	}

	purchase, err := parseOptionalDate("purchase_date", req.PurchaseDate)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	warranty, err := parseOptionalDate("warranty_expires", req.WarrantyExpires)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	asset := &types.Asset{
		ID:              types.NewAssetID(),
		LocationID:      req.LocationID,
		Name:            req.Name,
		Category:        req.Category,
		SerialNumber:    req.SerialNumber,
		Status:          types.AssetOperational,
		PurchaseDate:    purchase,
		WarrantyExpires: warranty,
		Notes:           req.Notes,
	}
	if req.Status != "" {
		asset.Status = types.AssetStatus(req.Status)
	}

	if err := h.assets.Create(r.Context(), asset); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "asset created", "asset_id", asset.ID, "location_id", asset.LocationID)
	core.Data(w, r, http.StatusCreated, asset)
}

// Update handles PATCH /v1/assets/{id}.
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateAssetRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	asset, err := h.assets.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.LocationID != nil && *req.LocationID != asset.LocationID {
		if _, err := h.locations.GetByID(r.Context(), *req.LocationID); err != nil {
			core.Error(w, r, err)
			return
		}
		asset.LocationID = *req.LocationID
	}
	if req.Name != nil {
		asset.Name = *req.Name
	}
	if req.Category != nil {
		asset.Category = *req.Category
	}
	if req.SerialNumber != nil {
		asset.SerialNumber = *req.SerialNumber
	}
	if req.Status != nil {
		asset.Status = types.AssetStatus(*req.Status)
	}
	if req.Notes != nil {
		asset.Notes = *req.Notes
	}
	if req.PurchaseDate != nil {
		if asset.PurchaseDate, err = parseOptionalDate("purchase_date", req.PurchaseDate); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if req.WarrantyExpires != nil {
		if asset.WarrantyExpires, err = parseOptionalDate("warranty_expires", req.WarrantyExpires); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	if err := h.assets.Update(r.Context(), asset); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, asset)
}

// Delete handles DELETE /v1/assets/{id}.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.assets.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "asset deleted", "asset_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func validAssetStatus(s string) bool {
	switch types.AssetStatus(s) {
	case types.AssetOperational, types.AssetNeedsService, types.AssetOutOfService, types.AssetRetired:
		return true
	}
	return false
}
