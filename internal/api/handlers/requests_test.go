package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

func TestRequests_CreateWithinLimitNeedsNoApproval(t *testing.T) {
	env := newTestEnv(t)
	loc := env.createLocation("Plant A")
	asset := env.createAsset(loc.ID, "Boiler")
	tech := env.users[types.RoleMaintenance]

	req := env.createRequest(types.RoleMaintenance, map[string]any{
		"title":                "Leaking valve",
		"asset_id":             asset.ID,
		"estimated_cost_cents": 20_000,
		"due_date":             "2025-03-20",
	})

	assert.True(t, len(req.ID) > 4 && req.ID[:4] == "req_")
	assert.Equal(t, tech.ID, req.RequestedBy)
	assert.Equal(t, loc.ID, req.LocationID)
	assert.Equal(t, types.RequestOpen, req.Status)
	assert.Equal(t, types.PriorityMedium, req.Priority)
	assert.Equal(t, types.ApprovalNotRequired, req.ApprovalStatus)
	assert.Equal(t, types.NewDate(2025, 3, 20), req.DueDate)
	assert.Empty(t, env.queued(types.NotifyApprovalRequested))
}

func TestRequests_CreateAboveLimitAsksAdmins(t *testing.T) {
	env := newTestEnv(t)

	req := env.createRequest(types.RoleOperator, map[string]any{
		"title":                "New roof panel",
		"estimated_cost_cents": 100,
	})
	assert.Equal(t, types.ApprovalPending, req.ApprovalStatus)

	queued := env.queued(types.NotifyApprovalRequested)
	require.Len(t, queued, 1)
	assert.Equal(t, "admin@example.com", queued[0].Recipient)
	assert.Equal(t, req.ID, queued[0].ReferenceID)
}

func TestRequests_CreateNotifiesAssignee(t *testing.T) {
	env := newTestEnv(t)

	env.createRequest(types.RoleOperator, map[string]any{
		"title":       "Door sticks",
		"assigned_to": env.users[types.RoleMaintenance].ID,
	})
	queued := env.queued(types.NotifyRequestCreated)
	require.Len(t, queued, 1)
	assert.Equal(t, "tech@example.com", queued[0].Recipient)
}

func TestRequests_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(types.RoleOperator, http.MethodPost, "/v1/requests", map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errorCode(t, rec))

	rec = env.do(types.RoleOperator, http.MethodPost, "/v1/requests", map[string]any{
		"title": "x", "estimated_cost_cents": -5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(types.RoleOperator, http.MethodPost, "/v1/requests", map[string]any{
		"title": "x", "asset_id": "ast_missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundAsset), errorCode(t, rec))
}

func TestRequests_ApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(types.RoleOperator, map[string]any{
		"title":                "Replace compressor",
		"estimated_cost_cents": 40_000,
	})
	require.Equal(t, types.ApprovalPending, req.ApprovalStatus)

	rec := env.do(types.RoleMaintenance, http.MethodPatch, "/v1/requests/"+req.ID, map[string]any{"status": "in_progress"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictApprovalPending), errorCode(t, rec))

	rec = env.do(types.RoleOperator, http.MethodPost, "/v1/requests/"+req.ID+"/approval", map[string]any{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(types.RoleMaintenance, http.MethodPost, "/v1/requests/"+req.ID+"/approval", map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decided types.Request
	decodeData(t, rec, &decided)
	assert.Equal(t, types.ApprovalApproved, decided.ApprovalStatus)
	assert.Equal(t, env.users[types.RoleMaintenance].ID, decided.ApprovedBy)
	require.NotNil(t, decided.ApprovedAt)

	rec = env.do(types.RoleAdmin, http.MethodPost, "/v1/requests/"+req.ID+"/approval", map[string]any{"decision": "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictNotPending), errorCode(t, rec))

	assert.Len(t, env.queued(types.NotifyApprovalDecided), 1)
}

func TestRequests_ApprovalAboveLimit(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(types.RoleOperator, map[string]any{
		"title":                "Chiller overhaul",
		"estimated_cost_cents": 90_000,
	})

	rec := env.do(types.RoleMaintenance, http.MethodPost, "/v1/requests/"+req.ID+"/approval", map[string]any{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(types.ErrCodePermissionApprovalLimit), errorCode(t, rec))

	rec = env.do(types.RoleAdmin, http.MethodPost, "/v1/requests/"+req.ID+"/approval", map[string]any{"decision": "reject"})
	require.Equal(t, http.StatusOK, rec.Code)
	var decided types.Request
	decodeData(t, rec, &decided)
	assert.Equal(t, types.ApprovalRejected, decided.ApprovalStatus)
	assert.Equal(t, types.RequestClosed, decided.Status)

	rec = env.do(types.RoleAdmin, http.MethodPost, "/v1/requests/"+req.ID+"/approval", map[string]any{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequests_UpdatePermissions(t *testing.T) {
	env := newTestEnv(t)
	mine := env.createRequest(types.RoleOperator, map[string]any{"title": "Light out"})
	theirs := env.createRequest(types.RoleAdmin, map[string]any{"title": "Fence"})

	rec := env.do(types.RoleOperator, http.MethodPatch, "/v1/requests/"+mine.ID, map[string]any{"description": "Hall B"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(types.RoleOperator, http.MethodPatch, "/v1/requests/"+mine.ID, map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(types.RoleOperator, http.MethodPatch, "/v1/requests/"+theirs.ID, map[string]any{"description": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(types.RoleMaintenance, http.MethodPatch, "/v1/requests/"+theirs.ID, map[string]any{"description": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequests_StatusAndAssignmentNotify(t *testing.T) {
	env := newTestEnv(t)
	tech := env.users[types.RoleMaintenance]
	req := env.createRequest(types.RoleOperator, map[string]any{"title": "Broken window"})

	rec := env.do(types.RoleMaintenance, http.MethodPatch, "/v1/requests/"+req.ID, map[string]any{
		"assigned_to": tech.ID,
		"status":      "resolved",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated types.Request
	decodeData(t, rec, &updated)
	assert.Equal(t, types.RequestResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	assert.True(t, updated.ResolvedAt.Equal(testNow))

	assigned := env.queued(types.NotifyRequestAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, "tech@example.com", assigned[0].Recipient)

	changed := env.queued(types.NotifyStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "operator@example.com", changed[0].Recipient)

	rec = env.do(types.RoleMaintenance, http.MethodPatch, "/v1/requests/"+req.ID, map[string]any{"status": "open"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reopened types.Request
	decodeData(t, rec, &reopened)
	assert.Nil(t, reopened.ResolvedAt)
}

func TestRequests_RepriceReopensApproval(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(types.RoleOperator, map[string]any{"title": "Paint"})
	require.Equal(t, types.ApprovalNotRequired, req.ApprovalStatus)

	rec := env.do(types.RoleOperator, http.MethodPatch, "/v1/requests/"+req.ID, map[string]any{"estimated_cost_cents": 5_000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated types.Request
	decodeData(t, rec, &updated)
	assert.Equal(t, types.ApprovalPending, updated.ApprovalStatus)
	assert.Len(t, env.queued(types.NotifyApprovalRequested), 1)

	rec = env.do(types.RoleAdmin, http.MethodPatch, "/v1/requests/"+req.ID, map[string]any{"estimated_cost_cents": 4_000})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &updated)
	assert.Equal(t, types.ApprovalNotRequired, updated.ApprovalStatus)
	assert.Len(t, env.queued(types.NotifyApprovalRequested), 1)
}

func TestRequests_ListFilters(t *testing.T) {
	env := newTestEnv(t)
	tech := env.users[types.RoleMaintenance]
	env.createRequest(types.RoleOperator, map[string]any{"title": "a", "assigned_to": tech.ID})
	env.createRequest(types.RoleOperator, map[string]any{"title": "b", "estimated_cost_cents": 10})
	env.createRequest(types.RoleAdmin, map[string]any{"title": "c"})

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?assigned_to=" + tech.ID, 1},
		{"?approval_status=pending", 1},
		{"?requested_by=" + env.users[types.RoleAdmin].ID, 1},
		{"?status=open", 3},
		{"?status=closed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(types.RoleOperator, http.MethodGet, "/v1/requests"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var reqs []types.Request
			decodePage(t, rec, &reqs)
			assert.Len(t, reqs, tt.want)
		})
	}

	rec := env.do(types.RoleOperator, http.MethodGet, "/v1/requests?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequests_DeleteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(types.RoleOperator, map[string]any{"title": "Spill"})

	rec := env.do(types.RoleMaintenance, http.MethodDelete, "/v1/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(types.RoleAdmin, http.MethodDelete, "/v1/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(types.RoleAdmin, http.MethodGet, "/v1/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundRequest), errorCode(t, rec))
}
