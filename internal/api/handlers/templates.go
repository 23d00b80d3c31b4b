package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// TemplateRepo is the template storage used by TemplateHandler.
type TemplateRepo interface {
	Create(ctx context.Context, tpl *types.Template) error
	GetByID(ctx context.Context, id string) (*types.Template, error)
	List(ctx context.Context, filter types.TemplateFilter) ([]*types.Template, types.PageInfo, error)
	Update(ctx context.Context, tpl *types.Template) error
	Delete(ctx context.Context, id string) error
}

// TemplateRunner generates requests and computes next run dates.
type TemplateRunner interface {
	RunNow(ctx context.Context, templateID string, actor types.Actor) (*types.Request, *types.Template, error)
	NextRun(tpl *types.Template) *types.Date
}

// AssetLookup resolves an asset by ID.
type AssetLookup interface {
	GetByID(ctx context.Context, id string) (*types.Asset, error)
}

// UserLookup resolves a user by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// TemplateView is a template as returned by the API. NextRunDate is
// recomputed on every read and is null for inactive templates.
type TemplateView struct {
	*types.Template
	NextRunDate *types.Date `json:"next_run_date"`
}

// CreateTemplateRequest is the body of POST /v1/templates.
type CreateTemplateRequest struct {
	Title              string `json:"title" validate:"required,max=200"`
	Description        string `json:"description" validate:"max=4000"`
	AssetID            string `json:"asset_id"`
	LocationID         string `json:"location_id"`
	IntervalDays       int    `json:"interval_days" validate:"min=1,max=3650"`
	AllowedWeekdays    []int  `json:"allowed_weekdays" validate:"omitempty,max=7,unique,dive,weekday"`
	Priority           string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo         string `json:"assigned_to"`
	EstimatedCostCents int64  `json:"estimated_cost_cents" validate:"min=0"`
	IsActive           *bool  `json:"is_active"`
}

// UpdateTemplateRequest is the body of PATCH /v1/templates/{id}.
// last_generated_date is not writable.
type UpdateTemplateRequest struct {
	Title              *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description        *string `json:"description" validate:"omitempty,max=4000"`
	AssetID            *string `json:"asset_id"`
	LocationID         *string `json:"location_id"`
	IntervalDays       *int    `json:"interval_days" validate:"omitempty,min=1,max=3650"`
	AllowedWeekdays    *[]int  `json:"allowed_weekdays" validate:"omitempty,max=7,unique,dive,weekday"`
	Priority           *string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo         *string `json:"assigned_to"`
	EstimatedCostCents *int64  `json:"estimated_cost_cents" validate:"omitempty,min=0"`
	IsActive           *bool   `json:"is_active"`
}

// RunTemplateResponse is returned by POST /v1/templates/{id}/run.
type RunTemplateResponse struct {
	Request  *types.Request `json:"request"`
	Template TemplateView   `json:"template"`
}

// TemplateHandler serves /v1/templates.
type TemplateHandler struct {
	templates TemplateRepo
	runner    TemplateRunner
	assets    AssetLookup
	users     UserLookup
	guard     RoleGuard
	validator *core.Validator
	logger    *slog.Logger
}

// NewTemplateHandler creates a TemplateHandler.
func NewTemplateHandler(templates TemplateRepo, runner TemplateRunner, assets AssetLookup, users UserLookup, guard RoleGuard, v *core.Validator, l *slog.Logger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		runner:    runner,
		assets:    assets,
		users:     users,
		guard:     guard,
		validator: v,
		logger:    defaultLogger(l),
	}
}

// RegisterRoutes mounts the template routes. Writes and manual runs need
// maintenance or admin.
func (h *TemplateHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	staff := h.guard.with(r, types.RoleMaintenance)
	staff.Post("/", h.Create)
	staff.Patch("/{id}", h.Update)
	staff.Delete("/{id}", h.Delete)
	staff.Post("/{id}/run", h.Run)
}

func (h *TemplateHandler) view(tpl *types.Template) TemplateView {
	return TemplateView{Template: tpl, NextRunDate: h.runner.NextRun(tpl)}
}

// List handles GET /v1/templates?asset_id=&active=.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := core.ParseListFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	activeOnly, err := core.ParseBoolQuery(r, "active")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	tpls, info, err := h.templates.List(r.Context(), types.TemplateFilter{
		ListFilter: page,
		AssetID:    r.URL.Query().Get("asset_id"),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	views := make([]TemplateView, 0, len(tpls))
	for _, t := range tpls {
		views = append(views, h.view(t))
	}
	core.Page(w, r, views, info)
}

// Get handles GET /v1/templates/{id}.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.templates.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, h.view(tpl))
}

// Create handles POST /v1/templates.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateTemplateRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	tpl := &types.Template{
		ID:                 types.NewTemplateID(),
		Title:              req.Title,
		Description:        req.Description,
		AssetID:            req.AssetID,
		LocationID:         req.LocationID,
		IntervalDays:       req.IntervalDays,
		AllowedWeekdays:    req.AllowedWeekdays,
		Priority:           types.PriorityMedium,
		AssignedTo:         req.AssignedTo,
		EstimatedCostCents: req.EstimatedCostCents,
		IsActive:           true,
		CreatedBy:          actor.ID,
	}
	if tpl.AllowedWeekdays == nil {
		tpl.AllowedWeekdays = []int{}
	}
	if req.Priority != "" {
		tpl.Priority = types.Priority(req.Priority)
	}
	if req.IsActive != nil {
		tpl.IsActive = *req.IsActive
	}
	if actor.IsSystem() {
		tpl.CreatedBy = ""
	}
	if err := h.resolveReferences(r.Context(), tpl); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.templates.Create(r.Context(), tpl); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "template created",
		"template_id", tpl.ID,
		"interval_days", tpl.IntervalDays,
		"actor_id", actor.ID,
	)
	core.Data(w, r, http.StatusCreated, h.view(tpl))
}

// Update handles PATCH /v1/templates/{id}.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateTemplateRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	tpl, err := h.templates.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Title != nil {
		tpl.Title = *req.Title
	}
	if req.Description != nil {
		tpl.Description = *req.Description
	}
	if req.AssetID != nil {
		tpl.AssetID = *req.AssetID
	}
	if req.LocationID != nil {
		tpl.LocationID = *req.LocationID
	}
	if req.IntervalDays != nil {
		tpl.IntervalDays = *req.IntervalDays
	}
	if req.AllowedWeekdays != nil {
		tpl.AllowedWeekdays = *req.AllowedWeekdays
	}
	if req.Priority != nil {
		tpl.Priority = types.Priority(*req.Priority)
	}
	if req.AssignedTo != nil {
		tpl.AssignedTo = *req.AssignedTo
	}
	if req.EstimatedCostCents != nil {
		tpl.EstimatedCostCents = *req.EstimatedCostCents
	}
	if req.IsActive != nil {
		tpl.IsActive = *req.IsActive
	}
	if err := h.resolveReferences(r.Context(), tpl); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.templates.Update(r.Context(), tpl); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, h.view(tpl))
}

// Delete handles DELETE /v1/templates/{id}. Requests generated earlier are
// kept.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.templates.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "template deleted", "template_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Run handles POST /v1/templates/{id}/run: generate one request now and
// return it with the stamped template.
func (h *TemplateHandler) Run(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, tpl, err := h.runner.RunNow(r.Context(), urlID(r), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusCreated, RunTemplateResponse{
		Request:  req,
		Template: h.view(tpl),
	})
}

// resolveReferences checks that the asset and assignee exist. A template on
// an asset without an explicit location inherits the asset's location.
func (h *TemplateHandler) resolveReferences(ctx context.Context, tpl *types.Template) error {
	if tpl.AssetID != "" {
		asset, err := h.assets.GetByID(ctx, tpl.AssetID)
		if err != nil {
			return err
		}
		if tpl.LocationID == "" {
			tpl.LocationID = asset.LocationID
		}
	}
	if tpl.AssignedTo != "" {
		if _, err := h.users.GetByID(ctx, tpl.AssignedTo); err != nil {
			return err
		}
	}
	return nil
}
