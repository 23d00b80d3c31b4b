package core

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"upkeep/internal/types"
)

func rateLimitedHandler(srv *Server) http.Handler {
	return srv.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimit_NoStorePassesThrough(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_NoActorSkipsStore(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: false}}
	srv.RateLimitStore = store

	rec := httptest.NewRecorder()
	rateLimitedHandler(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(store.Keys) != 0 {
		t.Fatalf("expected no store calls, got %v", store.Keys)
	}
}

func TestRateLimit_AllowedSetsHeaders(t *testing.T) {
	srv := newTestServer(t)
	reset := time.Unix(1717372800, 0)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true, Limit: 20, Remaining: 19, ResetAt: reset}}
	srv.RateLimitStore = store

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/assets", nil),
		types.Actor{ID: "usr_7", Type: types.ActorTypeUser, Role: types.RoleOperator})
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.Keys[0] != "usr_7" {
		t.Fatalf("expected actor ID as key, got %v", store.Keys)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "20" ||
		rec.Header().Get("X-RateLimit-Remaining") != "19" ||
		rec.Header().Get("X-RateLimit-Reset") != "1717372800" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
}

func TestRateLimit_DeniedReturns429(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimitStore = &MockRateLimitStore{Result: RateLimitResult{
		Allowed: false,
		Limit:   20,
		ResetAt: time.Now().Add(3 * time.Second),
	}}

	req := withActor(httptest.NewRequest(http.MethodPost, "/v1/requests", nil),
		types.Actor{ID: "usr_7", Type: types.ActorTypeUser, Role: types.RoleOperator})
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != string(types.ErrCodeRateLimit) {
		t.Fatalf("expected rate limit code, got %s", got)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "3" {
		t.Fatalf("expected Retry-After 3, got %q", ra)
	}
}

func TestRateLimit_StoreErrorFailsOpen(t *testing.T) {
	srv := newTestServer(t)
	srv.RateLimitStore = &MockRateLimitStore{Err: errors.New("boom")}

	req := withActor(httptest.NewRequest(http.MethodGet, "/v1/assets", nil),
		types.Actor{ID: "usr_7", Type: types.ActorTypeUser})
	rec := httptest.NewRecorder()
	rateLimitedHandler(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rec.Code)
	}
}
