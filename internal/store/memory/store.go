// Package memory is an in-process storage backend. It mirrors the Postgres
// repositories closely enough to run the API and worker without a database
// and to back service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"upkeep/internal/types"
)

// Store holds every table in maps guarded by a single mutex. Values are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu    sync.RWMutex
	clock types.Clock

	locations     map[string]*types.Location
	assets        map[string]*types.Asset
	templates     map[string]*types.Template
	requests      map[string]*types.Request
	users         map[string]*types.User
	notifications map[string]*types.Notification
	locks         map[string]jobLock
	history       []*types.JobRun
}

type jobLock struct {
	workerID  string
	expiresAt time.Time
}

// New creates an empty Store. A nil clock defaults to RealClock.
func New(clock types.Clock) *Store {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Store{
		clock:         clock,
		locations:     make(map[string]*types.Location),
		assets:        make(map[string]*types.Asset),
		templates:     make(map[string]*types.Template),
		requests:      make(map[string]*types.Request),
		users:         make(map[string]*types.User),
		notifications: make(map[string]*types.Notification),
		locks:         make(map[string]jobLock),
	}
}

func (s *Store) Locations() *LocationRepository         { return &LocationRepository{s: s} }
func (s *Store) Assets() *AssetRepository               { return &AssetRepository{s: s} }
func (s *Store) Templates() *TemplateRepository         { return &TemplateRepository{s: s} }
func (s *Store) Requests() *RequestRepository           { return &RequestRepository{s: s} }
func (s *Store) Users() *UserRepository                 { return &UserRepository{s: s} }
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s: s} }
func (s *Store) JobLocks() *JobLockRepository           { return &JobLockRepository{s: s} }
func (s *Store) JobHistory() *JobHistoryRepository      { return &JobHistoryRepository{s: s} }

// RunInTx runs fn against the store directly. There is no rollback: writes
// made before a failure stay, in the order fn made them.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos types.GenerationRepos) error) error {
	return fn(ctx, types.GenerationRepos{
		Requests:  s.Requests(),
		Templates: s.Templates(),
	})
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// History returns a copy of the recorded job runs, oldest first.
func (s *Store) History() []types.JobRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.JobRun, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, *h)
	}
	return out
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// keyed is implemented by every row type that can be listed with a cursor.
type keyed interface {
	cursorKey() types.Cursor
}

type locationRow struct{ *types.Location }
type assetRow struct{ *types.Asset }
type templateRow struct{ *types.Template }
type requestRow struct{ *types.Request }
type userRow struct{ *types.User }
type notificationRow struct{ *types.Notification }

func (r locationRow) cursorKey() types.Cursor     { return types.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
func (r assetRow) cursorKey() types.Cursor        { return types.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
func (r templateRow) cursorKey() types.Cursor     { return types.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
func (r requestRow) cursorKey() types.Cursor      { return types.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
func (r userRow) cursorKey() types.Cursor         { return types.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }
func (r notificationRow) cursorKey() types.Cursor { return types.Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }

// before reports whether a sorts after b in (created_at DESC, id DESC)
// order, i.e. a comes later in the listing.
func before(a, b types.Cursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// paginate sorts rows newest first, skips everything up to and including the
// cursor and trims to limit.
func paginate[T keyed](rows []T, filter types.ListFilter) ([]T, types.PageInfo) {
	sort.Slice(rows, func(i, j int) bool {
		return before(rows[j].cursorKey(), rows[i].cursorKey())
	})

	if !filter.Cursor.IsZero() {
		start := len(rows)
		for i, r := range rows {
			if before(r.cursorKey(), filter.Cursor) {
				start = i
				break
			}
		}
		rows = rows[start:]
	}

	limit := types.ClampLimit(filter.Limit)
	var info types.PageInfo
	if len(rows) > limit {
		info.HasMore = true
		info.NextCursor = rows[limit-1].cursorKey().Encode()
		rows = rows[:limit]
	}
	return rows, info
}

func sameFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "store operation cancelled", err)
	}
	return nil
}
