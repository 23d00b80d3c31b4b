package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/approval"
	"upkeep/internal/core"
	"upkeep/internal/types"
)

// RequestRepo is the request storage used by RequestHandler.
type RequestRepo interface {
	GetByID(ctx context.Context, id string) (*types.Request, error)
	List(ctx context.Context, filter types.RequestFilter) ([]*types.Request, types.PageInfo, error)
	Update(ctx context.Context, req *types.Request) error
	Delete(ctx context.Context, id string) error
}

// ApprovalService creates requests and records approval decisions.
type ApprovalService interface {
	Submit(ctx context.Context, req *types.Request, actor types.Actor) error
	Decide(ctx context.Context, requestID string, actor types.Actor, decision approval.Decision) (*types.Request, error)
}

// RequestNotifier is told about changes made through PATCH.
type RequestNotifier interface {
	RequestAssigned(ctx context.Context, req *types.Request) error
	StatusChanged(ctx context.Context, req *types.Request, previous types.RequestStatus) error
	ApprovalRequested(ctx context.Context, req *types.Request) error
}

// CreateRequestRequest is the body of POST /v1/requests.
type CreateRequestRequest struct {
	Title              string  `json:"title" validate:"required,max=200"`
	Description        string  `json:"description" validate:"max=4000"`
	AssetID            string  `json:"asset_id"`
	LocationID         string  `json:"location_id"`
	Priority           string  `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo         string  `json:"assigned_to"`
	DueDate            *string `json:"due_date" validate:"omitempty,date"`
	EstimatedCostCents int64   `json:"estimated_cost_cents" validate:"min=0"`
}

// UpdateRequestRequest is the body of PATCH /v1/requests/{id}.
type UpdateRequestRequest struct {
	Title              *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description        *string `json:"description" validate:"omitempty,max=4000"`
	AssetID            *string `json:"asset_id"`
	LocationID         *string `json:"location_id"`
	Priority           *string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Status             *string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	AssignedTo         *string `json:"assigned_to"`
	DueDate            *string `json:"due_date" validate:"omitempty,date"`
	EstimatedCostCents *int64  `json:"estimated_cost_cents" validate:"omitempty,min=0"`
}

// ApprovalDecisionRequest is the body of POST /v1/requests/{id}/approval.
type ApprovalDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// RequestHandler serves /v1/requests.
type RequestHandler struct {
	requests  RequestRepo
	approvals ApprovalService
	notifier  RequestNotifier
	assets    AssetLookup
	users     UserLookup
	clock     types.Clock
	guard     RoleGuard
	validator *core.Validator
	logger    *slog.Logger
}

// RequestHandlerConfig holds the dependencies of a RequestHandler.
type RequestHandlerConfig struct {
	Requests  RequestRepo
	Approvals ApprovalService
	Notifier  RequestNotifier
	Assets    AssetLookup
	Users     UserLookup
	Clock     types.Clock
	Guard     RoleGuard
	Validator *core.Validator
	Logger    *slog.Logger
}

// NewRequestHandler creates a RequestHandler.
func NewRequestHandler(cfg RequestHandlerConfig) *RequestHandler {
	return &RequestHandler{
		requests:  cfg.Requests,
		approvals: cfg.Approvals,
		notifier:  cfg.Notifier,
		assets:    cfg.Assets,
		users:     cfg.Users,
		clock:     defaultClock(cfg.Clock),
		guard:     cfg.Guard,
		validator: cfg.Validator,
		logger:    defaultLogger(cfg.Logger),
	}
}

// RegisterRoutes mounts the request routes. Anyone may file a request;
// update rights are checked per request; deletion needs admin.
func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Post("/{id}/approval", h.Decide)

	h.guard.with(r, types.RoleAdmin).Delete("/{id}", h.Delete)
}

// List handles GET /v1/requests with optional status, approval_status,
// asset_id, assigned_to and requested_by filters.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := core.ParseListFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := types.RequestFilter{
		ListFilter:  page,
		AssetID:     q.Get("asset_id"),
		AssignedTo:  q.Get("assigned_to"),
		RequestedBy: q.Get("requested_by"),
	}
	if s := q.Get("status"); s != "" {
		if !validRequestStatus(s) {
			core.Error(w, r, invalidFilter("status", "open, in_progress, resolved, closed"))
			return
		}
		filter.Status = types.RequestStatus(s)
	}
	if s := q.Get("approval_status"); s != "" {
		if !validApprovalStatus(s) {
			core.Error(w, r, invalidFilter("approval_status", "not_required, pending, approved, rejected"))
			return
		}
		filter.ApprovalStatus = types.ApprovalStatus(s)
	}

	reqs, info, err := h.requests.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Page(w, r, reqs, info)
}

// Get handles GET /v1/requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, req)
}

// Create handles POST /v1/requests. The approval status is derived from the
// requester's approval limit.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body CreateRequestRequest
	if !decodeValid(w, r, h.validator, &body) {
		return
	}
	due, err := parseOptionalDate("due_date", body.DueDate)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	req := &types.Request{
		ID:                 types.NewRequestID(),
		Title:              body.Title,
		Description:        body.Description,
		AssetID:            body.AssetID,
		LocationID:         body.LocationID,
		Priority:           types.Priority(body.Priority),
		AssignedTo:         body.AssignedTo,
		DueDate:            due,
		EstimatedCostCents: body.EstimatedCostCents,
	}
	if err := h.resolveReferences(r.Context(), req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.approvals.Submit(r.Context(), req, actor); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "request created",
		"request_id", req.ID,
		"actor_id", actor.ID,
		"approval_status", string(req.ApprovalStatus),
	)
	core.Data(w, r, http.StatusCreated, req)
}

// Update handles PATCH /v1/requests/{id}. Maintenance staff and admins may
// edit any request; other users only their own, and only maintenance staff
// change the status.
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body UpdateRequestRequest
	if !decodeValid(w, r, h.validator, &body) {
		return
	}

	req, err := h.requests.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	staff := actor.RoleHasAtLeast(types.RoleMaintenance)
	if !staff && actor.ID != req.RequestedBy {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionRole,
			"only maintenance staff or the requester can edit this request", nil))
		return
	}
	if body.Status != nil && !staff {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionRole,
			"only maintenance staff can change request status", nil))
		return
	}

	previousStatus := req.Status
	previousAssignee := req.AssignedTo

	if body.Title != nil {
		req.Title = *body.Title
	}
	if body.Description != nil {
		req.Description = *body.Description
	}
	if body.AssetID != nil {
		req.AssetID = *body.AssetID
	}
	if body.LocationID != nil {
		req.LocationID = *body.LocationID
	}
	if body.Priority != nil {
		req.Priority = types.Priority(*body.Priority)
	}
	if body.AssignedTo != nil {
		req.AssignedTo = *body.AssignedTo
	}
	if body.DueDate != nil {
		if req.DueDate, err = parseOptionalDate("due_date", body.DueDate); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	needsApproval := false
	if body.EstimatedCostCents != nil {
		needsApproval = approval.Reprice(req, actor, *body.EstimatedCostCents)
	}
	if body.Status != nil {
		if err := approval.TransitionStatus(req, types.RequestStatus(*body.Status), h.clock.Now()); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if err := h.resolveReferences(r.Context(), req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.requests.Update(r.Context(), req); err != nil {
		core.Error(w, r, err)
		return
	}

	ctx := r.Context()
	if req.AssignedTo != "" && req.AssignedTo != previousAssignee {
		h.notify(ctx, req, h.notifier.RequestAssigned(ctx, req))
	}
	if req.Status != previousStatus {
		h.notify(ctx, req, h.notifier.StatusChanged(ctx, req, previousStatus))
	}
	if needsApproval {
		h.notify(ctx, req, h.notifier.ApprovalRequested(ctx, req))
	}
	core.Data(w, r, http.StatusOK, req)
}

// Delete handles DELETE /v1/requests/{id}.
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.requests.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "request deleted", "request_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Decide handles POST /v1/requests/{id}/approval. Who may decide is checked
// by the approval policy.
func (h *RequestHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body ApprovalDecisionRequest
	if !decodeValid(w, r, h.validator, &body) {
		return
	}

	req, err := h.approvals.Decide(r.Context(), urlID(r), actor, approval.Decision(body.Decision))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, req)
}

// resolveReferences checks the asset and assignee. A request on an asset
// without an explicit location inherits the asset's location.
func (h *RequestHandler) resolveReferences(ctx context.Context, req *types.Request) error {
	if req.AssetID != "" {
		asset, err := h.assets.GetByID(ctx, req.AssetID)
		if err != nil {
			return err
		}
		if req.LocationID == "" {
			req.LocationID = asset.LocationID
		}
	}
	if req.AssignedTo != "" {
		if _, err := h.users.GetByID(ctx, req.AssignedTo); err != nil {
			return err
		}
	}
	return nil
}

func (h *RequestHandler) notify(ctx context.Context, req *types.Request, err error) {
	if err != nil {
		h.logger.WarnContext(ctx, "failed to enqueue notification", "request_id", req.ID, "error", err)
	}
}

func invalidFilter(field, allowed string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
		field+" must be one of: "+allowed, nil, map[string]any{"field": field})
}

func validRequestStatus(s string) bool {
	switch types.RequestStatus(s) {
	case types.RequestOpen, types.RequestInProgress, types.RequestResolved, types.RequestClosed:
		return true
	}
	return false
}

func validApprovalStatus(s string) bool {
	switch types.ApprovalStatus(s) {
	case types.ApprovalNotRequired, types.ApprovalPending, types.ApprovalApproved, types.ApprovalRejected:
		return true
	}
	return false
}
