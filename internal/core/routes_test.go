package core

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/types"
)

func mountedServer(t *testing.T) (*Server, *MockMetrics) {
	t.Helper()
	srv := newTestServer(t)
	metrics := &MockMetrics{}
	srv.Metrics = metrics
	srv.Authenticator = &MockAuthenticator{
		Actor: &types.Actor{ID: "usr_1", Type: types.ActorTypeUser, Role: types.RoleOperator},
	}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
			actor, _ := types.GetActor(r.Context())
			Data(w, r, http.StatusOK, map[string]string{
				"id":    chi.URLParam(r, "id"),
				"actor": actor.ID,
			})
		})
		r.Get("/big", func(w http.ResponseWriter, r *http.Request) {
			Data(w, r, http.StatusOK, strings.Repeat("x", 8192))
		})
	})
	srv.MountRoutes()
	return srv, metrics
}

func TestMountRoutes_HealthIsPublic(t *testing.T) {
	srv, _ := mountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Version != "1.2.3" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestMountRoutes_V1RequiresToken(t *testing.T) {
	srv, _ := mountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(types.ErrCodeAuthTokenMissing)) {
		t.Fatalf("expected auth_token_missing, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id on error responses")
	}
}

func TestMountRoutes_AuthenticatedRequest(t *testing.T) {
	srv, metrics := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/things/42", nil)
	req.Header.Set("Authorization", "Bearer upk_abc")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["id"] != "42" || body.Data["actor"] != "usr_1" {
		t.Fatalf("unexpected body: %+v", body.Data)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}

	if len(metrics.Requests) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(metrics.Requests))
	}
	got := metrics.Requests[0]
	if got.Endpoint != "/v1/things/{id}" || got.Status != "200" || got.Method != http.MethodGet {
		t.Fatalf("unexpected metric: %+v", got)
	}
}

func TestMountRoutes_CompressesLargeJSON(t *testing.T) {
	srv, _ := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/big", nil)
	req.Header.Set("Authorization", "Bearer upk_abc")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers: %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(raw), strings.Repeat("x", 100)) {
		t.Fatal("decompressed body does not contain payload")
	}
}

func TestMountRoutes_SmallResponsesNotCompressed(t *testing.T) {
	srv, _ := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/things/1", nil)
	req.Header.Set("Authorization", "Bearer upk_abc")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if enc := rec.Header().Get("Content-Encoding"); enc != "" {
		t.Fatalf("expected no encoding for small body, got %q", enc)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "req-123" || rec.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("expected propagated ID, got ctx=%q header=%q", seen, rec.Header().Get("X-Request-Id"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Fatalf("expected generated UUID, got %q", seen)
	}
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := ContextTimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("expected a deadline")
	}
	if until := time.Until(deadline); until > time.Second || until <= 0 {
		t.Fatalf("unexpected deadline distance %v", until)
	}
}

func TestRequestTimeoutFromConfig(t *testing.T) {
	srv := newTestServer(t)
	if srv.requestTimeout() != defaultRequestTimeout {
		t.Fatalf("expected default timeout, got %v", srv.requestTimeout())
	}
	srv.Config.Server.RequestTimeout = 5 * time.Second
	if srv.requestTimeout() != 5*time.Second {
		t.Fatalf("expected configured timeout, got %v", srv.requestTimeout())
	}
}
