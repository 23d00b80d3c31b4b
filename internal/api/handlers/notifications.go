package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// NotificationRepo is the queue access used by NotificationHandler.
type NotificationRepo interface {
	GetByID(ctx context.Context, id string) (*types.Notification, error)
	List(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, types.PageInfo, error)
	Reset(ctx context.Context, id string, now time.Time) error
}

// NotificationHandler serves /v1/notifications for admins inspecting the
// outbound email queue.
type NotificationHandler struct {
	notifications NotificationRepo
	clock         types.Clock
	guard         RoleGuard
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications NotificationRepo, clock types.Clock, guard RoleGuard, l *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		clock:         defaultClock(clock),
		guard:         guard,
		logger:        defaultLogger(l),
	}
}

// RegisterRoutes mounts the notification routes.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	admin := h.guard.with(r, types.RoleAdmin)
	admin.Get("/", h.List)
	admin.Get("/{id}", h.Get)
	admin.Post("/{id}/retry", h.Retry)
}

// List handles GET /v1/notifications with an optional ?status filter.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := core.ParseListFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	filter := types.NotificationFilter{ListFilter: page}
	if s := r.URL.Query().Get("status"); s != "" {
		switch types.NotificationStatus(s) {
		case types.NotificationPending, types.NotificationSent, types.NotificationFailed:
			filter.Status = types.NotificationStatus(s)
		default:
			core.Error(w, r, invalidFilter("status", "pending, sent, failed"))
			return
		}
	}

	rows, info, err := h.notifications.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Page(w, r, rows, info)
}

// Get handles GET /v1/notifications/{id}.
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, n)
}

// Retry handles POST /v1/notifications/{id}/retry. Only failed rows can be
// put back on the queue.
func (h *NotificationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := urlID(r)
	if err := h.notifications.Reset(r.Context(), id, h.clock.Now()); err != nil {
		core.Error(w, r, err)
		return
	}
	n, err := h.notifications.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "notification requeued", "notification_id", id)
	core.Data(w, r, http.StatusOK, n)
}
