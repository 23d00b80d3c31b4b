package core

import (
	"context"
	"time"

	"upkeep/internal/types"
)

// Authenticator decouples the HTTP layer from token storage.
type Authenticator interface {
	// ResolveToken maps a bearer token to an Actor.
	//
	// Error codes:
	// - auth_token_invalid: unknown or malformed token.
	// - auth_user_inactive: the owning user has been deactivated.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for per-actor rate limiting.
type RateLimitStore interface {
	// Allow consumes one request for key and reports whether it fits.
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed bool
	// Limit is the burst size of the bucket.
	Limit int
	// Remaining is the number of whole tokens left after this request.
	Remaining int
	// ResetAt is when the next token becomes available.
	ResetAt time.Time
}

// Store is the part of the storage registry the chassis needs for health
// checks and shutdown.
type Store interface {
	Ping(ctx context.Context) error
	Close()
}
