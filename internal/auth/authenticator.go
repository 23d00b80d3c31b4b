package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"upkeep/internal/types"
)

// UserStore is the subset of the user repository the authenticator needs.
type UserStore interface {
	GetByTokenHash(ctx context.Context, hash string) (*types.User, error)
	SetTokenHash(ctx context.Context, id string, hash string) error
}

// TokenAuthenticator implements core.Authenticator over hashed API tokens.
type TokenAuthenticator struct {
	users    UserStore
	adminKey types.SecretString
	tokenGen TokenGenerator
	logger   *slog.Logger
}

// NewTokenAuthenticator creates a TokenAuthenticator. An empty adminKey
// disables the bootstrap key. A nil tokenGen uses CryptoTokenGenerator.
func NewTokenAuthenticator(users UserStore, adminKey types.SecretString, tokenGen TokenGenerator, logger *slog.Logger) *TokenAuthenticator {
	if tokenGen == nil {
		tokenGen = CryptoTokenGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuthenticator{
		users:    users,
		adminKey: adminKey,
		tokenGen: tokenGen,
		logger:   logger,
	}
}

// ResolveToken maps a raw bearer token to an Actor.
//
// The bootstrap admin key resolves to the system actor so the first admin
// user can be created. Every other token must carry the "upk_" prefix and
// match the stored hash of an active user. The role and approval limit are
// read on every call, so changes apply to the next request.
func (a *TokenAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing API token", nil)
	}

	if key := a.adminKey.Unmask(); key != "" &&
		subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
		actor := types.SystemActor()
		return &actor, nil
	}

	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API token", nil)
	}

	user, err := a.users.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeAuthTokenInvalid {
			a.logger.ErrorContext(ctx, "token lookup failed", "error", err)
		}
		return nil, err
	}
	if !user.Active {
		return nil, types.NewAppError(types.ErrCodeAuthUserInactive, "user is deactivated", nil)
	}

	return &types.Actor{
		ID:                 user.ID,
		Type:               types.ActorTypeUser,
		Email:              user.Email,
		Role:               user.Role,
		ApprovalLimitCents: user.ApprovalLimitCents,
	}, nil
}

// IssueToken generates a fresh token for userID, stores its hash and returns
// the raw value. Any previous token of the user stops working.
func (a *TokenAuthenticator) IssueToken(ctx context.Context, userID string) (string, error) {
	token, err := a.tokenGen.GenerateAPIToken()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate API token", err)
	}
	if err := a.users.SetTokenHash(ctx, userID, HashToken(token)); err != nil {
		return "", err
	}
	a.logger.InfoContext(ctx, "API token issued", "user_id", userID)
	return token, nil
}
