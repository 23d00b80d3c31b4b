package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/auth"
	"upkeep/internal/core"
	"upkeep/internal/types"
)

// UserRepo is the user storage used by UserHandler.
type UserRepo interface {
	Create(ctx context.Context, user *types.User) error
	GetByID(ctx context.Context, id string) (*types.User, error)
	List(ctx context.Context, filter types.ListFilter) ([]*types.User, types.PageInfo, error)
	Update(ctx context.Context, user *types.User) error
}

// TokenIssuer mints a fresh API token for a user, revoking the previous one.
type TokenIssuer interface {
	IssueToken(ctx context.Context, userID string) (string, error)
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Email              string `json:"email" validate:"required,email,max=254"`
	Name               string `json:"name" validate:"required,max=200"`
	Role               string `json:"role" validate:"required,oneof=operator maintenance admin"`
	ApprovalLimitCents int64  `json:"approval_limit_cents" validate:"min=0"`
}

// UpdateUserRequest is the body of PATCH /v1/users/{id}.
type UpdateUserRequest struct {
	Email              *string `json:"email" validate:"omitempty,email,max=254"`
	Name               *string `json:"name" validate:"omitempty,min=1,max=200"`
	Role               *string `json:"role" validate:"omitempty,oneof=operator maintenance admin"`
	ApprovalLimitCents *int64  `json:"approval_limit_cents" validate:"omitempty,min=0"`
	Active             *bool   `json:"active"`
}

// UserWithToken carries the raw API token. It is only returned when a token
// is minted and is never retrievable afterwards.
type UserWithToken struct {
	User     *types.User `json:"user"`
	APIToken string      `json:"api_token"`
}

// UserHandler serves /v1/users. All routes require admin.
type UserHandler struct {
	users     UserRepo
	tokens    TokenIssuer
	guard     RoleGuard
	validator *core.Validator
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserRepo, tokens TokenIssuer, guard RoleGuard, v *core.Validator, l *slog.Logger) *UserHandler {
	return &UserHandler{
		users:     users,
		tokens:    tokens,
		guard:     guard,
		validator: v,
		logger:    defaultLogger(l),
	}
}

// RegisterRoutes mounts the user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	admin := h.guard.with(r, types.RoleAdmin)
	admin.Get("/", h.List)
	admin.Post("/", h.Create)
	admin.Get("/{id}", h.Get)
	admin.Patch("/{id}", h.Update)
	admin.Post("/{id}/token", h.RotateToken)
}

// List handles GET /v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := core.ParseListFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	users, info, err := h.users.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Page(w, r, users, info)
}

// Get handles GET /v1/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, user)
}

// Create handles POST /v1/users and returns the user with a one-time token.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateUserRequest
	if !decodeValid(w, r, h.validator, &body) {
		return
	}

	user := &types.User{
		ID:                 types.NewUserID(),
		Email:              auth.CanonicalizeEmail(body.Email),
		Name:               body.Name,
		Role:               types.UserRole(body.Role),
		ApprovalLimitCents: body.ApprovalLimitCents,
		Active:             true,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}

	token, err := h.tokens.IssueToken(r.Context(), user.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user created", "user_id", user.ID, "role", string(user.Role))
	core.Data(w, r, http.StatusCreated, UserWithToken{User: user, APIToken: token})
}

// Update handles PATCH /v1/users/{id}. Deactivating a user revokes access
// without deleting history.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body UpdateUserRequest
	if !decodeValid(w, r, h.validator, &body) {
		return
	}

	user, err := h.users.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if body.Email != nil {
		user.Email = auth.CanonicalizeEmail(*body.Email)
	}
	if body.Name != nil {
		user.Name = *body.Name
	}
	if body.Role != nil {
		user.Role = types.UserRole(*body.Role)
	}
	if body.ApprovalLimitCents != nil {
		user.ApprovalLimitCents = *body.ApprovalLimitCents
	}
	if body.Active != nil {
		user.Active = *body.Active
	}

	if err := h.users.Update(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, user)
}

// RotateToken handles POST /v1/users/{id}/token.
func (h *UserHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), urlID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	token, err := h.tokens.IssueToken(r.Context(), user.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "api token rotated", "user_id", user.ID)
	core.Data(w, r, http.StatusOK, UserWithToken{User: user, APIToken: token})
}
