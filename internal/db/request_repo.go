package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// RequestRepository provides data access for the maintenance_requests table.
type RequestRepository struct {
	db DBTX
}

// NewRequestRepository creates a new RequestRepository backed by the given
// database connection (pool or transaction).
func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `r.id, r.title, r.description, r.asset_id, r.location_id, r.template_id,
	r.priority, r.status, r.requested_by, r.assigned_to, r.due_date, r.estimated_cost_cents,
	r.approval_status, r.approved_by, r.approved_at, r.resolved_at,
	r.created_at, r.updated_at, r.deleted_at`

// scanRequest scans a single request row. The columns must match the order
// defined in requestColumns.
func scanRequest(row pgx.Row) (*types.Request, error) {
	var q types.Request
	var (
		assetID, locationID, templateID *string
		assignedTo, approvedBy          *string
		dueDate                         *time.Time
	)
	err := row.Scan(
		&q.ID,
		&q.Title,
		&q.Description,
		&assetID,
		&locationID,
		&templateID,
		&q.Priority,
		&q.Status,
		&q.RequestedBy,
		&assignedTo,
		&dueDate,
		&q.EstimatedCostCents,
		&q.ApprovalStatus,
		&approvedBy,
		&q.ApprovedAt,
		&q.ResolvedAt,
		&q.CreatedAt,
		&q.UpdatedAt,
		&q.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	q.AssetID = derefString(assetID)
	q.LocationID = derefString(locationID)
	q.TemplateID = derefString(templateID)
	q.AssignedTo = derefString(assignedTo)
	q.ApprovedBy = derefString(approvedBy)
	q.DueDate = dateFromColumn(dueDate)
	return &q, nil
}

// Create inserts a request.
func (r *RequestRepository) Create(ctx context.Context, req *types.Request) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO maintenance_requests (id, title, description, asset_id, location_id,
		 template_id, priority, status, requested_by, assigned_to, due_date,
		 estimated_cost_cents, approval_status, approved_by, approved_at, resolved_at,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		 COALESCE($17, NOW()), NOW())
		 RETURNING created_at, updated_at`,
		req.ID,
		req.Title,
		req.Description,
		nilIfEmpty(req.AssetID),
		nilIfEmpty(req.LocationID),
		nilIfEmpty(req.TemplateID),
		req.Priority,
		req.Status,
		req.RequestedBy,
		nilIfEmpty(req.AssignedTo),
		dateArg(req.DueDate),
		req.EstimatedCostCents,
		req.ApprovalStatus,
		nilIfEmpty(req.ApprovedBy),
		req.ApprovedAt,
		req.ResolvedAt,
		nilIfZeroTime(req.CreatedAt),
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.NewAppError(types.ErrCodeValidationInvalidValue,
				"request references an unknown asset, location, template or user", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create request", err)
	}
	return nil
}

// GetByID retrieves a live request.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*types.Request, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+requestColumns+`
		 FROM maintenance_requests r
		 WHERE r.id = $1 AND r.deleted_at IS NULL`,
		id,
	)
	q, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRequest, "request not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve request", err)
	}
	return q, nil
}

// List returns live requests newest first with optional filters.
func (r *RequestRepository) List(ctx context.Context, filter types.RequestFilter) ([]*types.Request, types.PageInfo, error) {
	limit := types.ClampLimit(filter.Limit)
	q := newListQuery("r")
	q.where("r.deleted_at IS NULL")
	if filter.Status != "" {
		q.where("r.status = ?", filter.Status)
	}
	if filter.ApprovalStatus != "" {
		q.where("r.approval_status = ?", filter.ApprovalStatus)
	}
	if filter.AssetID != "" {
		q.where("r.asset_id = ?", filter.AssetID)
	}
	if filter.AssignedTo != "" {
		q.where("r.assigned_to = ?", filter.AssignedTo)
	}
	if filter.RequestedBy != "" {
		q.where("r.requested_by = ?", filter.RequestedBy)
	}
	q.after(filter.Cursor)
	sql, args := q.build(requestColumns, "maintenance_requests", limit)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list requests", err)
	}
	defer rows.Close()

	var results []*types.Request
	for rows.Next() {
		req, scanErr := scanRequest(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan request row", scanErr)
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating request rows", err)
	}

	results, info := pageOf(results, limit, func(q *types.Request) types.Cursor {
		return types.Cursor{CreatedAt: q.CreatedAt, ID: q.ID}
	})
	return results, info, nil
}

// Update writes every mutable field of a live request, including status and
// approval columns. Status transitions are direct writes.
func (r *RequestRepository) Update(ctx context.Context, req *types.Request) error {
	err := r.db.QueryRow(ctx,
		`UPDATE maintenance_requests SET title = $1, description = $2, asset_id = $3,
		 location_id = $4, priority = $5, status = $6, assigned_to = $7, due_date = $8,
		 estimated_cost_cents = $9, approval_status = $10, approved_by = $11,
		 approved_at = $12, resolved_at = $13, updated_at = NOW()
		 WHERE id = $14 AND deleted_at IS NULL
		 RETURNING created_at, updated_at`,
		req.Title,
		req.Description,
		nilIfEmpty(req.AssetID),
		nilIfEmpty(req.LocationID),
		req.Priority,
		req.Status,
		nilIfEmpty(req.AssignedTo),
		dateArg(req.DueDate),
		req.EstimatedCostCents,
		req.ApprovalStatus,
		nilIfEmpty(req.ApprovedBy),
		req.ApprovedAt,
		req.ResolvedAt,
		req.ID,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return types.NewAppError(types.ErrCodeNotFoundRequest, "request not found", nil)
		case isForeignKeyViolation(err):
			return types.NewAppError(types.ErrCodeValidationInvalidValue,
				"request references an unknown asset, location or user", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update request", err)
	}
	return nil
}

// Delete soft-deletes a request.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_requests SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete request", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRequest, "request not found", nil)
	}
	return nil
}

// CountByStatus counts live requests grouped by status for the dashboard.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[types.RequestStatus]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM maintenance_requests
		 WHERE deleted_at IS NULL
		 GROUP BY status`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count requests", err)
	}
	defer rows.Close()

	counts := make(map[types.RequestStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan request count", err)
		}
		counts[types.RequestStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating request counts", err)
	}
	return counts, nil
}
