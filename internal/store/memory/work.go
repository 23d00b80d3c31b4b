package memory

import (
	"context"
	"sort"

	"upkeep/internal/types"
)

// TemplateRepository implements types.TemplateRepository.
type TemplateRepository struct {
	s *Store
}

func cloneTemplate(t *types.Template) *types.Template {
	c := *t
	c.AllowedWeekdays = append([]int(nil), t.AllowedWeekdays...)
	c.DeletedAt = copyTimePtr(t.DeletedAt)
	return &c
}

func (r *TemplateRepository) Create(ctx context.Context, tpl *types.Template) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	r.s.templates[tpl.ID] = cloneTemplate(tpl)
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*types.Template, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.templates[id]
	if !ok || t.DeletedAt != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	return cloneTemplate(t), nil
}

func (r *TemplateRepository) List(ctx context.Context, filter types.TemplateFilter) ([]*types.Template, types.PageInfo, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, types.PageInfo{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rows []templateRow
	for _, t := range r.s.templates {
		if t.DeletedAt != nil {
			continue
		}
		if filter.AssetID != "" && t.AssetID != filter.AssetID {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		rows = append(rows, templateRow{cloneTemplate(t)})
	}
	page, info := paginate(rows, filter.ListFilter)
	out := make([]*types.Template, len(page))
	for i, row := range page {
		out[i] = row.Template
	}
	return out, info, nil
}

// ListActive returns every live active template, oldest first.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]*types.Template, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*types.Template
	for _, t := range r.s.templates {
		if t.DeletedAt == nil && t.IsActive {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return before(templateRow{out[i]}.cursorKey(), templateRow{out[j]}.cursorKey())
	})
	return out, nil
}

// Update writes the editable fields. LastGeneratedDate is left untouched.
func (r *TemplateRepository) Update(ctx context.Context, tpl *types.Template) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.templates[tpl.ID]
	if !ok || existing.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	tpl.CreatedAt = existing.CreatedAt
	tpl.CreatedBy = existing.CreatedBy
	tpl.LastGeneratedDate = existing.LastGeneratedDate
	tpl.UpdatedAt = r.s.now()
	r.s.templates[tpl.ID] = cloneTemplate(tpl)
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.templates[id]
	if !ok || t.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	t.DeletedAt = timePtr(r.s.now())
	return nil
}

// MarkGenerated stamps last_generated_date.
func (r *TemplateRepository) MarkGenerated(ctx context.Context, id string, on types.Date) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.templates[id]
	if !ok || t.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
	}
	t.LastGeneratedDate = on
	t.UpdatedAt = r.s.now()
	return nil
}

// RequestRepository implements types.RequestRepository.
type RequestRepository struct {
	s *Store
}

func cloneRequest(q *types.Request) *types.Request {
	c := *q
	c.ApprovedAt = copyTimePtr(q.ApprovedAt)
	c.ResolvedAt = copyTimePtr(q.ResolvedAt)
	c.DeletedAt = copyTimePtr(q.DeletedAt)
	return &c
}

func (r *RequestRepository) Create(ctx context.Context, req *types.Request) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	r.s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*types.Request, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	q, ok := r.s.requests[id]
	if !ok || q.DeletedAt != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundRequest, "request not found", nil)
	}
	return cloneRequest(q), nil
}

func (r *RequestRepository) List(ctx context.Context, filter types.RequestFilter) ([]*types.Request, types.PageInfo, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, types.PageInfo{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rows []requestRow
	for _, q := range r.s.requests {
		switch {
		case q.DeletedAt != nil,
			filter.Status != "" && q.Status != filter.Status,
			filter.ApprovalStatus != "" && q.ApprovalStatus != filter.ApprovalStatus,
			filter.AssetID != "" && q.AssetID != filter.AssetID,
			filter.AssignedTo != "" && q.AssignedTo != filter.AssignedTo,
			filter.RequestedBy != "" && q.RequestedBy != filter.RequestedBy:
			continue
		}
		rows = append(rows, requestRow{cloneRequest(q)})
	}
	page, info := paginate(rows, filter.ListFilter)
	out := make([]*types.Request, len(page))
	for i, row := range page {
		out[i] = row.Request
	}
	return out, info, nil
}

func (r *RequestRepository) Update(ctx context.Context, req *types.Request) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.requests[req.ID]
	if !ok || existing.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundRequest, "request not found", nil)
	}
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = r.s.now()
	r.s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.requests[id]
	if !ok || q.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundRequest, "request not found", nil)
	}
	q.DeletedAt = timePtr(r.s.now())
	return nil
}

// CountByStatus counts live requests per status.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[types.RequestStatus]int, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[types.RequestStatus]int)
	for _, q := range r.s.requests {
		if q.DeletedAt == nil {
			counts[q.Status]++
		}
	}
	return counts, nil
}
