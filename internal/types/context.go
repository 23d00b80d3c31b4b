package types

import (
	"context"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// SystemActorID is the actor ID recorded for work done by background jobs
// and the bootstrap admin key.
const SystemActorID = "system"

// Actor represents the authenticated entity performing an operation.
type Actor struct {
	ID                 string
	Type               ActorType
	Email              string
	Role               UserRole
	ApprovalLimitCents int64
}

// SystemActor returns the actor used by scheduled jobs.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Type: ActorTypeSystem, Role: RoleAdmin}
}

// IsSystem reports whether the actor is a background/system identity.
func (a Actor) IsSystem() bool {
	return a.Type == ActorTypeSystem
}

// RoleHasAtLeast reports whether the actor's role is equal to or higher than
// the given role. System actors always pass.
func (a Actor) RoleHasAtLeast(role UserRole) bool {
	if a.IsSystem() {
		return true
	}
	return a.Role.AtLeast(role)
}

// Context Keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
