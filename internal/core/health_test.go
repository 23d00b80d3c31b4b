package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type funcProbe struct {
	name  string
	check func(ctx context.Context) error
}

func (p funcProbe) Name() string                    { return p.name }
func (p funcProbe) Check(ctx context.Context) error { return p.check(ctx) }

func runHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv, err := NewServer(testConfig(), &MockStore{}, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	code, body := runHealth(t, srv)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Fatalf("expected healthy, got %d %+v", code, body)
	}
	if body.Components["store"].Status != "healthy" {
		t.Fatalf("expected store component, got %+v", body.Components)
	}
}

func TestHandleHealth_StoreDown(t *testing.T) {
	srv, err := NewServer(testConfig(), &MockStore{PingErr: errors.New("dial tcp: refused")}, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	code, body := runHealth(t, srv)
	if code != http.StatusServiceUnavailable || body.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %d %+v", code, body)
	}
	if body.Components["store"].Message != "dial tcp: refused" {
		t.Fatalf("unexpected component %+v", body.Components["store"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{funcProbe{name: "email", check: func(context.Context) error {
		panic("nil client")
	}}}
	code, body := runHealth(t, srv)
	if code != http.StatusServiceUnavailable || body.Components["email"].Status != "unhealthy" {
		t.Fatalf("expected unhealthy email, got %d %+v", code, body)
	}
}

func TestHandleHealth_SlowProbeTimesOut(t *testing.T) {
	srv := newTestServer(t)
	release := make(chan struct{})
	defer close(release)
	srv.HealthProbes = []HealthProbe{funcProbe{name: "slow", check: func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}}}

	code, body := runHealth(t, srv)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body.Components["slow"].Status != "unhealthy" {
		t.Fatalf("expected slow probe unhealthy, got %+v", body.Components)
	}
}
