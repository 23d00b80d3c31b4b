package handlers

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/store"
	"upkeep/internal/types"
)

// TemplateScheduler is the runner as seen by the template and dashboard
// handlers.
type TemplateScheduler interface {
	TemplateRunner
	ScheduleClock
}

// Deps holds everything the /v1 handlers need.
type Deps struct {
	Store     *store.Registry
	Runner    TemplateScheduler
	Approvals ApprovalService
	Notifier  RequestNotifier
	Tokens    TokenIssuer
	Clock     types.Clock
	Guard     RoleGuard
	Validator *core.Validator
	Logger    *slog.Logger
}

// Register returns a registrar for core.Server.V1RouteRegistrars that mounts
// every resource under /v1.
func Register(d Deps) func(chi.Router) {
	s := d.Store
	locations := NewLocationHandler(s.Locations, s.Assets, d.Guard, d.Validator, d.Logger)
	assets := NewAssetHandler(s.Assets, s.Locations, d.Guard, d.Validator, d.Logger)
	templates := NewTemplateHandler(s.Templates, d.Runner, s.Assets, s.Users, d.Guard, d.Validator, d.Logger)
	requests := NewRequestHandler(RequestHandlerConfig{
		Requests:  s.Requests,
		Approvals: d.Approvals,
		Notifier:  d.Notifier,
		Assets:    s.Assets,
		Users:     s.Users,
		Clock:     d.Clock,
		Guard:     d.Guard,
		Validator: d.Validator,
		Logger:    d.Logger,
	})
	dashboard := NewDashboardHandler(s.Templates, s.Requests, d.Runner, d.Logger)
	users := NewUserHandler(s.Users, d.Tokens, d.Guard, d.Validator, d.Logger)
	notifications := NewNotificationHandler(s.Notifications, d.Clock, d.Guard, d.Logger)

	return func(r chi.Router) {
		r.Route("/locations", locations.RegisterRoutes)
		r.Route("/assets", assets.RegisterRoutes)
		r.Route("/templates", templates.RegisterRoutes)
		r.Route("/requests", requests.RegisterRoutes)
		r.Route("/dashboard", dashboard.RegisterRoutes)
		r.Route("/users", users.RegisterRoutes)
		r.Route("/notifications", notifications.RegisterRoutes)
	}
}
