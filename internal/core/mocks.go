package core

import (
	"context"
	"sync"
	"time"

	"upkeep/internal/types"
)

// MockAuthenticator implements Authenticator for tests. ResolveTokenFunc
// takes precedence, then Err, then Actor.
type MockAuthenticator struct {
	Actor            *types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// MockRateLimitStore implements RateLimitStore for tests.
type MockRateLimitStore struct {
	Result    RateLimitResult
	Err       error
	AllowFunc func(ctx context.Context, key string) (RateLimitResult, error)

	mu   sync.Mutex
	Keys []string
}

func (m *MockRateLimitStore) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()

	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	if m.Err != nil {
		return RateLimitResult{}, m.Err
	}
	return m.Result, nil
}

// MockStore implements Store for tests.
type MockStore struct {
	PingErr error

	mu     sync.Mutex
	Closed bool
}

func (m *MockStore) Ping(context.Context) error { return m.PingErr }

func (m *MockStore) Close() {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
}

// RecordedRequest is one call captured by MockMetrics.
type RecordedRequest struct {
	Method, Endpoint, Status string
	Duration                 time.Duration
}

// MockMetrics implements MetricsCollector for tests.
type MockMetrics struct {
	mu       sync.Mutex
	Requests []RecordedRequest
}

func (m *MockMetrics) RecordRequest(method, endpoint, status string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, RecordedRequest{Method: method, Endpoint: endpoint, Status: status, Duration: d})
}
