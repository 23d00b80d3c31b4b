package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// LocationRepository provides data access for the locations table.
type LocationRepository struct {
	db DBTX
}

// NewLocationRepository creates a new LocationRepository backed by the given
// database connection (pool or transaction).
func NewLocationRepository(db DBTX) *LocationRepository {
	return &LocationRepository{db: db}
}

const locationColumns = `l.id, l.name, l.address, l.description, l.created_at, l.updated_at, l.deleted_at`

func scanLocation(row pgx.Row) (*types.Location, error) {
	var l types.Location
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Address,
		&l.Description,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a location. Names are unique among live locations
// (case-insensitive); a clash returns conflict_location_name_exists.
func (r *LocationRepository) Create(ctx context.Context, loc *types.Location) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO locations (id, name, address, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), NOW())
		 RETURNING created_at, updated_at`,
		loc.ID,
		loc.Name,
		loc.Address,
		loc.Description,
		nilIfZeroTime(loc.CreatedAt),
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictLocationName, "a location with this name already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create location", err)
	}
	return nil
}

// GetByID retrieves a live location.
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*types.Location, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+locationColumns+`
		 FROM locations l
		 WHERE l.id = $1 AND l.deleted_at IS NULL`,
		id,
	)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve location", err)
	}
	return l, nil
}

// List returns live locations newest first.
func (r *LocationRepository) List(ctx context.Context, filter types.ListFilter) ([]*types.Location, types.PageInfo, error) {
	limit := types.ClampLimit(filter.Limit)
	q := newListQuery("l")
	q.where("l.deleted_at IS NULL")
	q.after(filter.Cursor)
	sql, args := q.build(locationColumns, "locations", limit)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list locations", err)
	}
	defer rows.Close()

	var results []*types.Location
	for rows.Next() {
		l, scanErr := scanLocation(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan location row", scanErr)
		}
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating location rows", err)
	}

	results, info := pageOf(results, limit, func(l *types.Location) types.Cursor {
		return types.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return results, info, nil
}

// Update writes the editable fields of a live location.
func (r *LocationRepository) Update(ctx context.Context, loc *types.Location) error {
	err := r.db.QueryRow(ctx,
		`UPDATE locations SET name = $1, address = $2, description = $3, updated_at = NOW()
		 WHERE id = $4 AND deleted_at IS NULL
		 RETURNING created_at, updated_at`,
		loc.Name,
		loc.Address,
		loc.Description,
		loc.ID,
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", nil)
		case isUniqueViolation(err):
			return types.NewAppError(types.ErrCodeConflictLocationName, "a location with this name already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update location", err)
	}
	return nil
}

// Delete soft-deletes a location.
func (r *LocationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE locations SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete location", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", nil)
	}
	return nil
}
