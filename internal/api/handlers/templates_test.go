package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

func (e *testEnv) createTemplate(body map[string]any) TemplateView {
	e.t.Helper()
	rec := e.do(types.RoleMaintenance, http.MethodPost, "/v1/templates", body)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var v TemplateView
	decodeData(e.t, rec, &v)
	return v
}

func TestTemplates_CreateComputesNextRun(t *testing.T) {
	env := newTestEnv(t)
	loc := env.createLocation("Plant A")
	asset := env.createAsset(loc.ID, "Boiler")

	v := env.createTemplate(map[string]any{
		"title":         "Inspect boiler",
		"asset_id":      asset.ID,
		"interval_days": 7,
		"assigned_to":   env.users[types.RoleMaintenance].ID,
	})

	assert.Equal(t, loc.ID, v.LocationID, "location is inherited from the asset")
	assert.Equal(t, types.PriorityMedium, v.Priority)
	assert.True(t, v.IsActive)
	assert.Equal(t, env.users[types.RoleMaintenance].ID, v.CreatedBy)
	assert.True(t, v.LastGeneratedDate.IsZero())
	require.NotNil(t, v.NextRunDate)
	assert.Equal(t, types.NewDate(2025, 3, 17), *v.NextRunDate)
}

func TestTemplates_WeekdaysShiftNextRun(t *testing.T) {
	env := newTestEnv(t)

	v := env.createTemplate(map[string]any{
		"title":            "Friday walkthrough",
		"interval_days":    1,
		"allowed_weekdays": []int{5},
	})
	require.NotNil(t, v.NextRunDate)
	assert.Equal(t, types.NewDate(2025, 3, 14), *v.NextRunDate)
}

func TestTemplates_InactiveHasNoNextRun(t *testing.T) {
	env := newTestEnv(t)

	v := env.createTemplate(map[string]any{
		"title":         "Seasonal",
		"interval_days": 90,
		"is_active":     false,
	})
	assert.Nil(t, v.NextRunDate)
}

func TestTemplates_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		code types.ErrorCode
	}{
		{"zero interval", map[string]any{"title": "x", "interval_days": 0}, types.ErrCodeValidationInvalidValue},
		{"bad weekday", map[string]any{"title": "x", "interval_days": 1, "allowed_weekdays": []int{7}}, types.ErrCodeValidationInvalidWeekday},
		{"duplicate weekday", map[string]any{"title": "x", "interval_days": 1, "allowed_weekdays": []int{1, 1}}, types.ErrCodeValidationInvalidValue},
		{"bad priority", map[string]any{"title": "x", "interval_days": 1, "priority": "urgent"}, types.ErrCodeValidationInvalidValue},
		{"missing title", map[string]any{"interval_days": 1}, types.ErrCodeValidationMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(types.RoleMaintenance, http.MethodPost, "/v1/templates", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.code), errorCode(t, rec))
		})
	}

	rec := env.do(types.RoleMaintenance, http.MethodPost, "/v1/templates", map[string]any{
		"title": "x", "interval_days": 1, "assigned_to": "usr_nobody",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundUser), errorCode(t, rec))
}

func TestTemplates_OperatorCannotWrite(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(types.RoleOperator, http.MethodPost, "/v1/templates", map[string]any{"title": "x", "interval_days": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTemplates_UpdateKeepsLastGenerated(t *testing.T) {
	env := newTestEnv(t)
	v := env.createTemplate(map[string]any{"title": "Filters", "interval_days": 30})

	rec := env.do(types.RoleMaintenance, http.MethodPost, "/v1/templates/"+v.ID+"/run", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(types.RoleMaintenance, http.MethodPatch, "/v1/templates/"+v.ID, map[string]any{
		"interval_days":    14,
		"allowed_weekdays": []int{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated TemplateView
	decodeData(t, rec, &updated)
	assert.Equal(t, 14, updated.IntervalDays)
	assert.Equal(t, types.NewDate(2025, 3, 10), updated.LastGeneratedDate)
	require.NotNil(t, updated.NextRunDate)
	assert.Equal(t, types.NewDate(2025, 3, 24), *updated.NextRunDate)
}

func TestTemplates_RunNowCreatesRequestAndStamps(t *testing.T) {
	env := newTestEnv(t)
	tech := env.users[types.RoleMaintenance]
	v := env.createTemplate(map[string]any{
		"title":                "Replace filters",
		"interval_days":        30,
		"priority":             "high",
		"assigned_to":          tech.ID,
		"estimated_cost_cents": 12_500,
	})

	rec := env.do(types.RoleMaintenance, http.MethodPost, "/v1/templates/"+v.ID+"/run", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp RunTemplateResponse
	decodeData(t, rec, &resp)
	require.NotNil(t, resp.Request)
	require.NotNil(t, resp.Template.Template)

	assert.Equal(t, "Replace filters", resp.Request.Title)
	assert.Equal(t, v.ID, resp.Request.TemplateID)
	assert.Equal(t, types.PriorityHigh, resp.Request.Priority)
	assert.Equal(t, types.RequestOpen, resp.Request.Status)
	assert.Equal(t, tech.ID, resp.Request.AssignedTo)
	assert.Equal(t, types.NewDate(2025, 3, 10), resp.Template.LastGeneratedDate)
	require.NotNil(t, resp.Template.NextRunDate)
	assert.Equal(t, types.NewDate(2025, 4, 9), *resp.Template.NextRunDate)

	stored, err := env.reg.Requests.GetByID(context.Background(), resp.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, stored.TemplateID)

	assert.Len(t, env.queued(types.NotifyRequestGenerated), 1)
}

func TestTemplates_RunNowUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(types.RoleMaintenance, http.MethodPost, "/v1/templates/tpl_missing/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundTemplate), errorCode(t, rec))
}

func TestTemplates_ListFiltersActive(t *testing.T) {
	env := newTestEnv(t)
	env.createTemplate(map[string]any{"title": "on", "interval_days": 1})
	env.createTemplate(map[string]any{"title": "off", "interval_days": 1, "is_active": false})

	rec := env.do(types.RoleOperator, http.MethodGet, "/v1/templates?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []TemplateView
	decodePage(t, rec, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "on", views[0].Title)

	rec = env.do(types.RoleOperator, http.MethodGet, "/v1/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodePage(t, rec, &views)
	assert.Len(t, views, 2)
}

func TestTemplates_Delete(t *testing.T) {
	env := newTestEnv(t)
	v := env.createTemplate(map[string]any{"title": "gone", "interval_days": 1})

	rec := env.do(types.RoleMaintenance, http.MethodDelete, "/v1/templates/"+v.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(types.RoleMaintenance, http.MethodGet, "/v1/templates/"+v.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
