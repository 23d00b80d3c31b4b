package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"upkeep/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestAuthMiddleware(t *testing.T) {
	operator := &types.Actor{ID: "usr_1", Type: types.ActorTypeUser, Role: types.RoleOperator}

	tests := []struct {
		name       string
		header     string
		auth       *MockAuthenticator
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "missing header",
			auth:       &MockAuthenticator{Actor: operator},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenMissing,
		},
		{
			name:       "wrong scheme",
			header:     "Basic abc",
			auth:       &MockAuthenticator{Actor: operator},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenMissing,
		},
		{
			name:       "invalid token",
			header:     "Bearer upk_nope",
			auth:       &MockAuthenticator{Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid", nil)},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenInvalid,
		},
		{
			name:       "inactive user",
			header:     "Bearer upk_old",
			auth:       &MockAuthenticator{Err: types.NewAppError(types.ErrCodeAuthUserInactive, "inactive", nil)},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthUserInactive,
		},
		{
			name:       "nil actor",
			header:     "Bearer upk_x",
			auth:       &MockAuthenticator{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenInvalid,
		},
		{
			name:       "store failure is not a 401",
			header:     "Bearer upk_x",
			auth:       &MockAuthenticator{Err: errors.New("connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrCodeInternalUnexpected,
		},
		{
			name:       "valid token",
			header:     "bearer upk_good",
			auth:       &MockAuthenticator{Actor: operator},
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.Authenticator = tc.auth

			var gotActor types.Actor
			h := srv.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotActor, _ = types.GetActor(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/assets", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantCode != "" {
				if got := decodeError(t, rec).Code; got != string(tc.wantCode) {
					t.Fatalf("expected code %s, got %s", tc.wantCode, got)
				}
				return
			}
			if gotActor.ID != operator.ID {
				t.Fatalf("expected actor in context, got %+v", gotActor)
			}
		})
	}
}

func TestAuthMiddleware_PublicPathSkipsLookup(t *testing.T) {
	srv := newTestServer(t)
	auth := &MockAuthenticator{}
	srv.Authenticator = auth

	h := srv.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(auth.Calls) != 0 {
		t.Fatalf("expected no token lookups, got %v", auth.Calls)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":     "abc",
		"BEARER  abc  ":  "abc",
		"Bearer ":        "",
		"Token abc":      "",
		"Bear":           "",
		"bearer upk_123": "upk_123",
	}
	for header, want := range tests {
		if got := extractBearerToken(header); got != want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		actor      *types.Actor
		wantStatus int
	}{
		{"no actor", nil, http.StatusUnauthorized},
		{"operator below maintenance", &types.Actor{ID: "u1", Type: types.ActorTypeUser, Role: types.RoleOperator}, http.StatusForbidden},
		{"maintenance passes", &types.Actor{ID: "u2", Type: types.ActorTypeUser, Role: types.RoleMaintenance}, http.StatusOK},
		{"admin passes", &types.Actor{ID: "u3", Type: types.ActorTypeUser, Role: types.RoleAdmin}, http.StatusOK},
		{"system passes", &types.Actor{ID: types.SystemActorID, Type: types.ActorTypeSystem}, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t)
			h := srv.RequireRole(types.RoleMaintenance)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/templates", nil)
			if tc.actor != nil {
				req = withActor(req, *tc.actor)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantStatus == http.StatusForbidden {
				if got := decodeError(t, rec).Code; got != string(types.ErrCodePermissionRole) {
					t.Fatalf("expected permission code, got %s", got)
				}
			}
		})
	}
}
