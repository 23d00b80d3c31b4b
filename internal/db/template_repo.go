package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// TemplateRepository provides data access for the maintenance_templates table.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a new TemplateRepository backed by the given
// database connection (pool or transaction).
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `t.id, t.title, t.description, t.asset_id, t.location_id, t.interval_days,
	t.allowed_weekdays, t.priority, t.assigned_to, t.estimated_cost_cents, t.is_active,
	t.last_generated_date, t.created_by, t.created_at, t.updated_at, t.deleted_at`

// scanTemplate scans a single template row. The columns must match the order
// defined in templateColumns.
func scanTemplate(row pgx.Row) (*types.Template, error) {
	var t types.Template
	var (
		assetID, locationID *string
		assignedTo          *string
		createdBy           *string
		lastGenerated       *time.Time
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&assetID,
		&locationID,
		&t.IntervalDays,
		&t.AllowedWeekdays,
		&t.Priority,
		&assignedTo,
		&t.EstimatedCostCents,
		&t.IsActive,
		&lastGenerated,
		&createdBy,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AssetID = derefString(assetID)
	t.LocationID = derefString(locationID)
	t.AssignedTo = derefString(assignedTo)
	t.CreatedBy = derefString(createdBy)
	t.LastGeneratedDate = dateFromColumn(lastGenerated)
	if t.AllowedWeekdays == nil {
		t.AllowedWeekdays = []int{}
	}
	return &t, nil
}

func weekdaysArg(days []int) []int {
	if days == nil {
		return []int{}
	}
	return days
}

// Create inserts a template. last_generated_date starts NULL.
func (r *TemplateRepository) Create(ctx context.Context, tpl *types.Template) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO maintenance_templates (id, title, description, asset_id, location_id,
		 interval_days, allowed_weekdays, priority, assigned_to, estimated_cost_cents,
		 is_active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, NOW()), NOW())
		 RETURNING created_at, updated_at`,
		tpl.ID,
		tpl.Title,
		tpl.Description,
		nilIfEmpty(tpl.AssetID),
		nilIfEmpty(tpl.LocationID),
		tpl.IntervalDays,
		weekdaysArg(tpl.AllowedWeekdays),
		tpl.Priority,
		nilIfEmpty(tpl.AssignedTo),
		tpl.EstimatedCostCents,
		tpl.IsActive,
		nilIfEmpty(tpl.CreatedBy),
		nilIfZeroTime(tpl.CreatedAt),
	).Scan(&tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.NewAppError(types.ErrCodeValidationInvalidValue,
				"template references an unknown asset, location or user", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create template", err)
	}
	return nil
}

// GetByID retrieves a live template.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*types.Template, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+templateColumns+`
		 FROM maintenance_templates t
		 WHERE t.id = $1 AND t.deleted_at IS NULL`,
		id,
	)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve template", err)
	}
	return t, nil
}

// List returns live templates newest first.
func (r *TemplateRepository) List(ctx context.Context, filter types.TemplateFilter) ([]*types.Template, types.PageInfo, error) {
	limit := types.ClampLimit(filter.Limit)
	q := newListQuery("t")
	q.where("t.deleted_at IS NULL")
	if filter.AssetID != "" {
		q.where("t.asset_id = ?", filter.AssetID)
	}
	if filter.ActiveOnly {
		q.where("t.is_active")
	}
	q.after(filter.Cursor)
	sql, args := q.build(templateColumns, "maintenance_templates", limit)

	results, err := r.queryTemplates(ctx, sql, args...)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	results, info := pageOf(results, limit, func(t *types.Template) types.Cursor {
		return types.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return results, info, nil
}

// ListActive returns every live active template, oldest first. Used by the
// daily generation job, which needs the whole set rather than a page.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]*types.Template, error) {
	return r.queryTemplates(ctx,
		`SELECT `+templateColumns+`
		 FROM maintenance_templates t
		 WHERE t.is_active AND t.deleted_at IS NULL
		 ORDER BY t.created_at, t.id`,
	)
}

func (r *TemplateRepository) queryTemplates(ctx context.Context, sql string, args ...any) ([]*types.Template, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list templates", err)
	}
	defer rows.Close()

	var results []*types.Template
	for rows.Next() {
		t, scanErr := scanTemplate(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan template row", scanErr)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating template rows", err)
	}
	return results, nil
}

// Update writes the editable fields of a live template. It never touches
// last_generated_date or created_by.
func (r *TemplateRepository) Update(ctx context.Context, tpl *types.Template) error {
	var lastGenerated *time.Time
	var createdBy *string
	err := r.db.QueryRow(ctx,
		`UPDATE maintenance_templates SET title = $1, description = $2, asset_id = $3,
		 location_id = $4, interval_days = $5, allowed_weekdays = $6, priority = $7,
		 assigned_to = $8, estimated_cost_cents = $9, is_active = $10, updated_at = NOW()
		 WHERE id = $11 AND deleted_at IS NULL
		 RETURNING last_generated_date, created_by, created_at, updated_at`,
		tpl.Title,
		tpl.Description,
		nilIfEmpty(tpl.AssetID),
		nilIfEmpty(tpl.LocationID),
		tpl.IntervalDays,
		weekdaysArg(tpl.AllowedWeekdays),
		tpl.Priority,
		nilIfEmpty(tpl.AssignedTo),
		tpl.EstimatedCostCents,
		tpl.IsActive,
		tpl.ID,
	).Scan(&lastGenerated, &createdBy, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
		case isForeignKeyViolation(err):
			return types.NewAppError(types.ErrCodeValidationInvalidValue,
				"template references an unknown asset, location or user", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update template", err)
	}
	tpl.LastGeneratedDate = dateFromColumn(lastGenerated)
	tpl.CreatedBy = derefString(createdBy)
	return nil
}

// Delete soft-deletes a template. Requests already generated from it keep
// their template_id.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_templates SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete template", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	return nil
}

// MarkGenerated stamps last_generated_date. It is the only statement that
// writes that column.
func (r *TemplateRepository) MarkGenerated(ctx context.Context, id string, on types.Date) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE maintenance_templates SET last_generated_date = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		dateArg(on),
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to stamp template", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	return nil
}
