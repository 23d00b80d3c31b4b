package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// AssetRepository provides data access for the assets table.
type AssetRepository struct {
	db DBTX
}

// NewAssetRepository creates a new AssetRepository backed by the given
// database connection (pool or transaction).
func NewAssetRepository(db DBTX) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `a.id, a.location_id, a.name, a.category, a.serial_number, a.status,
	a.purchase_date, a.warranty_expires, a.notes, a.created_at, a.updated_at, a.deleted_at`

// scanAsset scans a single asset row. DATE columns are read as nullable
// timestamps and converted to calendar dates.
func scanAsset(row pgx.Row) (*types.Asset, error) {
	var a types.Asset
	var purchase, warranty *time.Time
	err := row.Scan(
		&a.ID,
		&a.LocationID,
		&a.Name,
		&a.Category,
		&a.SerialNumber,
		&a.Status,
		&purchase,
		&warranty,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.PurchaseDate = dateFromColumn(purchase)
	a.WarrantyExpires = dateFromColumn(warranty)
	return &a, nil
}

// Create inserts an asset. An unknown location_id returns not_found_location.
func (r *AssetRepository) Create(ctx context.Context, asset *types.Asset) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO assets (id, location_id, name, category, serial_number, status,
		 purchase_date, warranty_expires, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), NOW())
		 RETURNING created_at, updated_at`,
		asset.ID,
		asset.LocationID,
		asset.Name,
		asset.Category,
		asset.SerialNumber,
		asset.Status,
		dateArg(asset.PurchaseDate),
		dateArg(asset.WarrantyExpires),
		asset.Notes,
		nilIfZeroTime(asset.CreatedAt),
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create asset", err)
	}
	return nil
}

// GetByID retrieves a live asset.
func (r *AssetRepository) GetByID(ctx context.Context, id string) (*types.Asset, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+assetColumns+`
		 FROM assets a
		 WHERE a.id = $1 AND a.deleted_at IS NULL`,
		id,
	)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve asset", err)
	}
	return a, nil
}

// List returns live assets newest first, optionally narrowed by location
// and status.
func (r *AssetRepository) List(ctx context.Context, filter types.AssetFilter) ([]*types.Asset, types.PageInfo, error) {
	limit := types.ClampLimit(filter.Limit)
	q := newListQuery("a")
	q.where("a.deleted_at IS NULL")
	if filter.LocationID != "" {
		q.where("a.location_id = ?", filter.LocationID)
	}
	if filter.Status != "" {
		q.where("a.status = ?", filter.Status)
	}
	q.after(filter.Cursor)
	sql, args := q.build(assetColumns, "assets", limit)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list assets", err)
	}
	defer rows.Close()

	var results []*types.Asset
	for rows.Next() {
		a, scanErr := scanAsset(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan asset row", scanErr)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating asset rows", err)
	}

	results, info := pageOf(results, limit, func(a *types.Asset) types.Cursor {
		return types.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return results, info, nil
}

// Update writes the editable fields of a live asset.
func (r *AssetRepository) Update(ctx context.Context, asset *types.Asset) error {
	err := r.db.QueryRow(ctx,
		`UPDATE assets SET location_id = $1, name = $2, category = $3, serial_number = $4,
		 status = $5, purchase_date = $6, warranty_expires = $7, notes = $8, updated_at = NOW()
		 WHERE id = $9 AND deleted_at IS NULL
		 RETURNING created_at, updated_at`,
		asset.LocationID,
		asset.Name,
		asset.Category,
		asset.SerialNumber,
		asset.Status,
		dateArg(asset.PurchaseDate),
		dateArg(asset.WarrantyExpires),
		asset.Notes,
		asset.ID,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
		case isForeignKeyViolation(err):
			return types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update asset", err)
	}
	return nil
}

// Delete soft-deletes an asset.
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete asset", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
	}
	return nil
}

// CountByLocation counts live assets at a location. Used to refuse deleting
// a location that still holds equipment.
func (r *AssetRepository) CountByLocation(ctx context.Context, locationID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM assets WHERE location_id = $1 AND deleted_at IS NULL`,
		locationID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count assets", err)
	}
	return count, nil
}
