package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/auth"
	"upkeep/internal/types"
)

func TestUsers_CreateReturnsWorkingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(types.RoleAdmin, http.MethodPost, "/v1/users", map[string]any{
		"email":                "Dana@Example.COM",
		"name":                 "Dana",
		"role":                 "maintenance",
		"approval_limit_cents": 25_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "api_token_hash")

	var resp UserWithToken
	decodeData(t, rec, &resp)
	assert.Equal(t, "dana@example.com", resp.User.Email)
	assert.Equal(t, types.RoleMaintenance, resp.User.Role)
	assert.True(t, resp.User.Active)
	assert.True(t, strings.HasPrefix(resp.APIToken, auth.TokenPrefix))

	env.tokens["dana"] = resp.APIToken
	rec = env.do("dana", http.MethodGet, "/v1/locations", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUsers_AdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(types.RoleMaintenance, http.MethodGet, "/v1/users", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(types.RoleAdmin, http.MethodGet, "/v1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []types.User
	decodePage(t, rec, &users)
	assert.Len(t, users, 3)
}

func TestUsers_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(types.RoleAdmin, http.MethodPost, "/v1/users", map[string]any{
		"email": "not-an-email", "name": "X", "role": "operator",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidEmail), errorCode(t, rec))

	rec = env.do(types.RoleAdmin, http.MethodPost, "/v1/users", map[string]any{
		"email": "x@example.com", "name": "X", "role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(types.RoleAdmin, http.MethodPost, "/v1/users", map[string]any{
		"email": "TECH@example.com", "name": "X", "role": "operator",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictEmail), errorCode(t, rec))
}

func TestUsers_DeactivateRevokesAccess(t *testing.T) {
	env := newTestEnv(t)
	op := env.users[types.RoleOperator]

	rec := env.do(types.RoleAdmin, http.MethodPatch, "/v1/users/"+op.ID, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(types.RoleOperator, http.MethodGet, "/v1/locations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthUserInactive), errorCode(t, rec))
}

func TestUsers_RoleChangeAppliesImmediately(t *testing.T) {
	env := newTestEnv(t)
	op := env.users[types.RoleOperator]

	rec := env.do(types.RoleOperator, http.MethodPost, "/v1/assets", map[string]any{"location_id": "loc_x", "name": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(types.RoleAdmin, http.MethodPatch, "/v1/users/"+op.ID, map[string]any{"role": "maintenance"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(types.RoleOperator, http.MethodPost, "/v1/assets", map[string]any{"location_id": "loc_x", "name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "passes the role check and fails on the unknown location")
}

func TestUsers_RotateToken(t *testing.T) {
	env := newTestEnv(t)
	tech := env.users[types.RoleMaintenance]
	old := env.tokens[types.RoleMaintenance]

	rec := env.do(types.RoleAdmin, http.MethodPost, "/v1/users/"+tech.ID+"/token", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp UserWithToken
	decodeData(t, rec, &resp)
	assert.NotEqual(t, old, resp.APIToken)

	rec = env.do(types.RoleMaintenance, http.MethodGet, "/v1/locations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.tokens[types.RoleMaintenance] = resp.APIToken
	rec = env.do(types.RoleMaintenance, http.MethodGet, "/v1/locations", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(types.RoleAdmin, http.MethodPost, "/v1/users/usr_missing/token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
