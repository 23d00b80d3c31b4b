package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"upkeep/internal/core"
	"upkeep/internal/recurrence"
	"upkeep/internal/types"
)

const (
	defaultUpcomingLimit = 10
	maxUpcomingLimit     = 100
	pendingApprovalLimit = 20
)

// ActiveTemplateLister lists every active template.
type ActiveTemplateLister interface {
	ListActive(ctx context.Context) ([]*types.Template, error)
}

// RequestSummarizer provides request counts and pending approvals.
type RequestSummarizer interface {
	List(ctx context.Context, filter types.RequestFilter) ([]*types.Request, types.PageInfo, error)
	CountByStatus(ctx context.Context) (map[types.RequestStatus]int, error)
}

// ScheduleClock exposes the runner's next-run computation and business
// timezone.
type ScheduleClock interface {
	NextRun(tpl *types.Template) *types.Date
	Now() time.Time
	Location() *time.Location
}

// UpcomingItem is one entry of the dashboard's upcoming maintenance list.
type UpcomingItem struct {
	TemplateID  string     `json:"template_id"`
	Title       string     `json:"title"`
	AssetID     string     `json:"asset_id,omitempty"`
	LocationID  string     `json:"location_id,omitempty"`
	Priority    string     `json:"priority"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	NextRunDate types.Date `json:"next_run_date"`
	DaysUntil   int        `json:"days_until"`
}

// DashboardResponse is returned by GET /v1/dashboard.
type DashboardResponse struct {
	Today            types.Date                  `json:"today"`
	Upcoming         []UpcomingItem              `json:"upcoming"`
	RequestCounts    map[types.RequestStatus]int `json:"request_counts"`
	PendingApprovals []*types.Request            `json:"pending_approvals"`
}

// DashboardHandler serves /v1/dashboard.
type DashboardHandler struct {
	templates ActiveTemplateLister
	requests  RequestSummarizer
	schedule  ScheduleClock
	logger    *slog.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(templates ActiveTemplateLister, requests RequestSummarizer, schedule ScheduleClock, l *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		templates: templates,
		requests:  requests,
		schedule:  schedule,
		logger:    defaultLogger(l),
	}
}

// RegisterRoutes mounts the dashboard route.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
}

// Get handles GET /v1/dashboard. ?limit caps the upcoming list.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	limit := defaultUpcomingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
				"limit must be a positive integer", err, map[string]any{"field": "limit"}))
			return
		}
		limit = min(n, maxUpcomingLimit)
	}

	resp := DashboardResponse{
		Today: types.DateOf(h.schedule.Now().In(h.schedule.Location())),
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		tpls, err := h.templates.ListActive(ctx)
		if err != nil {
			return err
		}
		resp.Upcoming = h.upcoming(tpls, resp.Today, limit)
		return nil
	})
	g.Go(func() error {
		counts, err := h.requests.CountByStatus(ctx)
		if err != nil {
			return err
		}
		resp.RequestCounts = counts
		return nil
	})
	g.Go(func() error {
		pending, _, err := h.requests.List(ctx, types.RequestFilter{
			ListFilter:     types.ListFilter{Limit: pendingApprovalLimit},
			ApprovalStatus: types.ApprovalPending,
		})
		if err != nil {
			return err
		}
		resp.PendingApprovals = pending
		return nil
	})
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build dashboard", "error", err)
		core.Error(w, r, err)
		return
	}

	if resp.Upcoming == nil {
		resp.Upcoming = []UpcomingItem{}
	}
	if resp.PendingApprovals == nil {
		resp.PendingApprovals = []*types.Request{}
	}
	if resp.RequestCounts == nil {
		resp.RequestCounts = make(map[types.RequestStatus]int)
	}
	for _, s := range []types.RequestStatus{types.RequestOpen, types.RequestInProgress, types.RequestResolved, types.RequestClosed} {
		if _, ok := resp.RequestCounts[s]; !ok {
			resp.RequestCounts[s] = 0
		}
	}
	core.Data(w, r, http.StatusOK, resp)
}

// upcoming orders templates by next run date, ties broken by title.
func (h *DashboardHandler) upcoming(tpls []*types.Template, today types.Date, limit int) []UpcomingItem {
	items := make([]UpcomingItem, 0, len(tpls))
	for _, tpl := range tpls {
		next := h.schedule.NextRun(tpl)
		if next == nil {
			continue
		}
		items = append(items, UpcomingItem{
			TemplateID:  tpl.ID,
			Title:       tpl.Title,
			AssetID:     tpl.AssetID,
			LocationID:  tpl.LocationID,
			Priority:    string(tpl.Priority),
			AssignedTo:  tpl.AssignedTo,
			NextRunDate: *next,
			DaysUntil:   recurrence.DaysUntil(*next, today),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].NextRunDate.Compare(items[j].NextRunDate); c != 0 {
			return c < 0
		}
		return items[i].Title < items[j].Title
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
