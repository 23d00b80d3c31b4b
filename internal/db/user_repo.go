package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.email, u.name, u.role, u.approval_limit_cents, u.api_token_hash,
	u.active, u.created_at, u.updated_at`

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var tokenHash *string
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.ApprovalLimitCents,
		&tokenHash,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.APITokenHash = derefString(tokenHash)
	return &u, nil
}

// Create inserts a user. Returns conflict_email_exists if the email is taken.
func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, name, role, approval_limit_cents, api_token_hash,
		 active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), NOW())
		 RETURNING created_at, updated_at`,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.ApprovalLimitCents,
		nilIfEmpty(user.APITokenHash),
		user.Active,
		nilIfZeroTime(user.CreatedAt),
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "a user with this email already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.id = $1`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByTokenHash retrieves the user owning a SHA-256 API token hash.
// Returns auth_token_invalid if no user matches.
func (r *UserRepository) GetByTokenHash(ctx context.Context, hash string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.api_token_hash = $1`,
		hash,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API token", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user by token", err)
	}
	return u, nil
}

// List returns users newest first.
func (r *UserRepository) List(ctx context.Context, filter types.ListFilter) ([]*types.User, types.PageInfo, error) {
	limit := types.ClampLimit(filter.Limit)
	q := newListQuery("u")
	q.after(filter.Cursor)
	sql, args := q.build(userColumns, "users", limit)

	results, err := r.queryUsers(ctx, sql, args...)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	results, info := pageOf(results, limit, func(u *types.User) types.Cursor {
		return types.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	return results, info, nil
}

// ListByRole returns active users holding exactly the given role, ordered by
// email. Used to fan out approval notifications to admins.
func (r *UserRepository) ListByRole(ctx context.Context, role types.UserRole) ([]*types.User, error) {
	return r.queryUsers(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.role = $1 AND u.active
		 ORDER BY u.email`,
		role,
	)
}

func (r *UserRepository) queryUsers(ctx context.Context, sql string, args ...any) ([]*types.User, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var results []*types.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", scanErr)
		}
		results = append(results, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}
	return results, nil
}

// Update applies changes to the mutable profile fields: email, name, role,
// approval limit and active flag. The token hash is changed only through
// SetTokenHash.
func (r *UserRepository) Update(ctx context.Context, user *types.User) error {
	err := r.db.QueryRow(ctx,
		`UPDATE users SET email = $1, name = $2, role = $3, approval_limit_cents = $4,
		 active = $5, updated_at = NOW()
		 WHERE id = $6
		 RETURNING created_at, updated_at`,
		user.Email,
		user.Name,
		user.Role,
		user.ApprovalLimitCents,
		user.Active,
		user.ID,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		case isUniqueViolation(err):
			return types.NewAppError(types.ErrCodeConflictEmail, "a user with this email already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user", err)
	}
	return nil
}

// SetTokenHash replaces the user's API token hash, revoking the old token.
func (r *UserRepository) SetTokenHash(ctx context.Context, id string, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET api_token_hash = $1, updated_at = NOW() WHERE id = $2`,
		nilIfEmpty(hash),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update API token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
