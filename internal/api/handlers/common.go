// Package handlers contains the HTTP handlers of the upkeep API. Each handler
// depends on narrow interfaces over the repositories and services it uses
// and mounts its routes through RegisterRoutes.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/core"
	"upkeep/internal/types"
)

// requireActor returns the authenticated actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}

// decodeValid decodes the JSON body into dst and validates it, writing the
// error response on failure.
func decodeValid(w http.ResponseWriter, r *http.Request, v *core.Validator, dst any) bool {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	if err := v.ValidateStruct(dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	return true
}

// parseOptionalDate converts a validated YYYY-MM-DD string. Nil and ""
// both mean "no date".
func parseOptionalDate(field string, raw *string) (types.Date, error) {
	if raw == nil || *raw == "" {
		return types.Date{}, nil
	}
	d, err := types.ParseDate(*raw)
	if err != nil {
		return types.Date{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidDate,
			field+" must be a date in YYYY-MM-DD format", err, map[string]any{"field": field})
	}
	return d, nil
}

func urlID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func defaultClock(c types.Clock) types.Clock {
	if c == nil {
		return types.RealClock{}
	}
	return c
}

// RoleGuard builds middleware that rejects actors below a role. cmd/api
// passes core.Server.RequireRole.
type RoleGuard func(role types.UserRole) func(http.Handler) http.Handler

// with returns r restricted to role, or r itself when no guard is set.
func (g RoleGuard) with(r chi.Router, role types.UserRole) chi.Router {
	if g == nil {
		return r
	}
	return r.With(g(role))
}
