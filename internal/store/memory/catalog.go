package memory

import (
	"context"

	"upkeep/internal/types"
)

// LocationRepository implements types.LocationRepository.
type LocationRepository struct {
	s *Store
}

func cloneLocation(l *types.Location) *types.Location {
	c := *l
	c.DeletedAt = copyTimePtr(l.DeletedAt)
	return &c
}

func (r *LocationRepository) nameTaken(name, exceptID string) bool {
	for _, l := range r.s.locations {
		if l.DeletedAt == nil && l.ID != exceptID && sameFold(l.Name, name) {
			return true
		}
	}
	return false
}

func (r *LocationRepository) Create(ctx context.Context, loc *types.Location) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.nameTaken(loc.Name, "") {
		return types.NewAppError(types.ErrCodeConflictLocationName, "a location with this name already exists", nil)
	}
	now := r.s.now()
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	loc.UpdatedAt = now
	r.s.locations[loc.ID] = cloneLocation(loc)
	return nil
}

func (r *LocationRepository) GetByID(ctx context.Context, id string) (*types.Location, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	l, ok := r.s.locations[id]
	if !ok || l.DeletedAt != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", nil)
	}
	return cloneLocation(l), nil
}

func (r *LocationRepository) List(ctx context.Context, filter types.ListFilter) ([]*types.Location, types.PageInfo, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, types.PageInfo{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rows []locationRow
	for _, l := range r.s.locations {
		if l.DeletedAt == nil {
			rows = append(rows, locationRow{cloneLocation(l)})
		}
	}
	page, info := paginate(rows, filter)
	out := make([]*types.Location, len(page))
	for i, row := range page {
		out[i] = row.Location
	}
	return out, info, nil
}

func (r *LocationRepository) Update(ctx context.Context, loc *types.Location) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.locations[loc.ID]
	if !ok || existing.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", nil)
	}
	if r.nameTaken(loc.Name, loc.ID) {
		return types.NewAppError(types.ErrCodeConflictLocationName, "a location with this name already exists", nil)
	}
	loc.CreatedAt = existing.CreatedAt
	loc.UpdatedAt = r.s.now()
	r.s.locations[loc.ID] = cloneLocation(loc)
	return nil
}

func (r *LocationRepository) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.locations[id]
	if !ok || l.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundLocation, "location not found", nil)
	}
	l.DeletedAt = timePtr(r.s.now())
	return nil
}

// AssetRepository implements types.AssetRepository.
type AssetRepository struct {
	s *Store
}

func cloneAsset(a *types.Asset) *types.Asset {
	c := *a
	c.DeletedAt = copyTimePtr(a.DeletedAt)
	return &c
}

func (r *AssetRepository) Create(ctx context.Context, asset *types.Asset) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now
	r.s.assets[asset.ID] = cloneAsset(asset)
	return nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (*types.Asset, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.assets[id]
	if !ok || a.DeletedAt != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
	}
	return cloneAsset(a), nil
}

func (r *AssetRepository) List(ctx context.Context, filter types.AssetFilter) ([]*types.Asset, types.PageInfo, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, types.PageInfo{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rows []assetRow
	for _, a := range r.s.assets {
		if a.DeletedAt != nil {
			continue
		}
		if filter.LocationID != "" && a.LocationID != filter.LocationID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		rows = append(rows, assetRow{cloneAsset(a)})
	}
	page, info := paginate(rows, filter.ListFilter)
	out := make([]*types.Asset, len(page))
	for i, row := range page {
		out[i] = row.Asset
	}
	return out, info, nil
}

func (r *AssetRepository) Update(ctx context.Context, asset *types.Asset) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.assets[asset.ID]
	if !ok || existing.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
	}
	asset.CreatedAt = existing.CreatedAt
	asset.UpdatedAt = r.s.now()
	r.s.assets[asset.ID] = cloneAsset(asset)
	return nil
}

func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.assets[id]
	if !ok || a.DeletedAt != nil {
		return types.NewAppError(types.ErrCodeNotFoundAsset, "asset not found", nil)
	}
	a.DeletedAt = timePtr(r.s.now())
	return nil
}

// CountByLocation counts live assets at a location.
func (r *AssetRepository) CountByLocation(ctx context.Context, locationID string) (int, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, a := range r.s.assets {
		if a.DeletedAt == nil && a.LocationID == locationID {
			n++
		}
	}
	return n, nil
}
