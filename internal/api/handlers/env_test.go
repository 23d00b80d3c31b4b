package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"upkeep/internal/approval"
	"upkeep/internal/auth"
	"upkeep/internal/config"
	"upkeep/internal/core"
	"upkeep/internal/notifications"
	"upkeep/internal/runner"
	"upkeep/internal/store"
	"upkeep/internal/store/memory"
	"upkeep/internal/types"
)

// testNow is a Monday.
var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// testEnv runs the full /v1 stack over the memory store with real token
// authentication, approvals, notifications and the runner.
type testEnv struct {
	t      *testing.T
	reg    *store.Registry
	srv    *core.Server
	users  map[types.UserRole]*types.User
	tokens map[types.UserRole]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := types.FixedClock(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := store.NewMemory(memory.New(clock))

	authn := auth.NewTokenAuthenticator(reg.Users, "", nil, logger)
	notifier := notifications.NewNotifier(reg.Notifications, reg.Users, nil, clock, logger)
	approvals := approval.NewService(approval.ServiceConfig{
		Requests: reg.Requests,
		Notifier: notifier,
		Clock:    clock,
		Logger:   logger,
	})
	run := runner.New(runner.Config{
		Templates: reg.Templates,
		Tx:        reg.Tx,
		Notifier:  notifier,
		Clock:     clock,
		Location:  time.UTC,
		Logger:    logger,
	})

	srv, err := core.NewServer(&config.Config{Service: "upkeep"}, reg, logger)
	require.NoError(t, err)
	srv.Authenticator = authn
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, Register(Deps{
		Store:     reg,
		Runner:    run,
		Approvals: approvals,
		Notifier:  notifier,
		Tokens:    authn,
		Clock:     clock,
		Guard:     srv.RequireRole,
		Validator: srv.Validator,
		Logger:    logger,
	}))
	srv.MountRoutes()

	env := &testEnv{
		t:      t,
		reg:    reg,
		srv:    srv,
		users:  make(map[types.UserRole]*types.User),
		tokens: make(map[types.UserRole]string),
	}
	env.seedUser(types.RoleAdmin, "admin@example.com", 0)
	env.seedUser(types.RoleMaintenance, "tech@example.com", 50_000)
	env.seedUser(types.RoleOperator, "operator@example.com", 0)

	for role, u := range env.users {
		token, err := authn.IssueToken(context.Background(), u.ID)
		require.NoError(t, err)
		env.tokens[role] = token
	}
	return env
}

func (e *testEnv) seedUser(role types.UserRole, email string, limit int64) {
	e.t.Helper()
	u := &types.User{
		ID:                 types.NewUserID(),
		Email:              email,
		Name:               string(role),
		Role:               role,
		ApprovalLimitCents: limit,
		Active:             true,
	}
	require.NoError(e.t, e.reg.Users.Create(context.Background(), u))
	e.users[role] = u
}

// do sends body as JSON with the bearer token of role. An empty role sends
// no token.
func (e *testEnv) do(role types.UserRole, method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[role])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the data member of a success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// decodePage unmarshals a list envelope.
func decodePage(t *testing.T, rec *httptest.ResponseRecorder, dst any) types.PageInfo {
	t.Helper()
	var env struct {
		Data json.RawMessage    `json:"data"`
		Meta types.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
	require.NotNil(t, env.Meta.Pagination)
	return *env.Meta.Pagination
}

// errorCode returns the error code of an error envelope.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

func (e *testEnv) createLocation(name string) *types.Location {
	e.t.Helper()
	rec := e.do(types.RoleAdmin, http.MethodPost, "/v1/locations", map[string]any{"name": name})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var loc types.Location
	decodeData(e.t, rec, &loc)
	return &loc
}

func (e *testEnv) createAsset(locationID, name string) *types.Asset {
	e.t.Helper()
	rec := e.do(types.RoleMaintenance, http.MethodPost, "/v1/assets", map[string]any{
		"location_id": locationID,
		"name":        name,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var a types.Asset
	decodeData(e.t, rec, &a)
	return &a
}

func (e *testEnv) createRequest(role types.UserRole, body map[string]any) *types.Request {
	e.t.Helper()
	rec := e.do(role, http.MethodPost, "/v1/requests", body)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var req types.Request
	decodeData(e.t, rec, &req)
	return &req
}

// queued returns the notifications of kind currently in the queue.
func (e *testEnv) queued(kind types.NotificationKind) []*types.Notification {
	e.t.Helper()
	rows, _, err := e.reg.Notifications.List(context.Background(), types.NotificationFilter{
		ListFilter: types.ListFilter{Limit: types.MaxPageSize},
	})
	require.NoError(e.t, err)
	var out []*types.Notification
	for _, n := range rows {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
