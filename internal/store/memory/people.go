package memory

import (
	"context"
	"sort"
	"time"

	"upkeep/internal/types"
)

// UserRepository implements types.UserRepository.
type UserRepository struct {
	s *Store
}

func cloneUser(u *types.User) *types.User {
	c := *u
	return &c
}

func (r *UserRepository) emailTaken(email, exceptID string) bool {
	for _, u := range r.s.users {
		if u.ID != exceptID && sameFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.emailTaken(user.Email, "") {
		return types.NewAppError(types.ErrCodeConflictEmail, "a user with this email already exists", nil)
	}
	now := r.s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return cloneUser(u), nil
}

// GetByTokenHash finds the user owning an API token hash. Unknown hashes are
// reported as an invalid token rather than a missing user.
func (r *UserRepository) GetByTokenHash(ctx context.Context, hash string) (*types.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if hash != "" {
		for _, u := range r.s.users {
			if u.APITokenHash == hash {
				return cloneUser(u), nil
			}
		}
	}
	return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid API token", nil)
}

func (r *UserRepository) List(ctx context.Context, filter types.ListFilter) ([]*types.User, types.PageInfo, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, types.PageInfo{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows := make([]userRow, 0, len(r.s.users))
	for _, u := range r.s.users {
		rows = append(rows, userRow{cloneUser(u)})
	}
	page, info := paginate(rows, filter)
	out := make([]*types.User, len(page))
	for i, row := range page {
		out[i] = row.User
	}
	return out, info, nil
}

// ListByRole returns active users with exactly the given role, by email.
func (r *UserRepository) ListByRole(ctx context.Context, role types.UserRole) ([]*types.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*types.User
	for _, u := range r.s.users {
		if u.Active && u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// Update writes profile fields. The token hash only changes through
// SetTokenHash.
func (r *UserRepository) Update(ctx context.Context, user *types.User) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.users[user.ID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	if r.emailTaken(user.Email, user.ID) {
		return types.NewAppError(types.ErrCodeConflictEmail, "a user with this email already exists", nil)
	}
	user.CreatedAt = existing.CreatedAt
	user.APITokenHash = existing.APITokenHash
	user.UpdatedAt = r.s.now()
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) SetTokenHash(ctx context.Context, id string, hash string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	u.APITokenHash = hash
	u.UpdatedAt = r.s.now()
	return nil
}

// NotificationRepository implements types.NotificationRepository.
type NotificationRepository struct {
	s *Store
}

func cloneNotification(n *types.Notification) *types.Notification {
	c := *n
	c.SentAt = copyTimePtr(n.SentAt)
	return &c
}

func (r *NotificationRepository) Enqueue(ctx context.Context, n *types.Notification) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = n.CreatedAt
	}
	if n.Status == "" {
		n.Status = types.NotificationPending
	}
	r.s.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*types.Notification, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return cloneNotification(n), nil
}

func (r *NotificationRepository) List(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, types.PageInfo, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, types.PageInfo{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rows []notificationRow
	for _, n := range r.s.notifications {
		if filter.Status == "" || n.Status == filter.Status {
			rows = append(rows, notificationRow{cloneNotification(n)})
		}
	}
	page, info := paginate(rows, filter.ListFilter)
	out := make([]*types.Notification, len(page))
	for i, row := range page {
		out[i] = row.Notification
	}
	return out, info, nil
}

// ClaimDue leases the oldest due rows by pushing their next attempt past the
// lease window, so a concurrent poller skips them.
func (r *NotificationRepository) ClaimDue(ctx context.Context, now time.Time, limit int, maxAttempts int, lease time.Duration) ([]*types.Notification, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var due []*types.Notification
	for _, n := range r.s.notifications {
		if n.Status == types.NotificationPending && !n.NextAttemptAt.After(now) && n.Attempts < maxAttempts {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*types.Notification, len(due))
	for i, n := range due {
		n.NextAttemptAt = now.Add(lease)
		out[i] = cloneNotification(n)
	}
	return out, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	n.Status = types.NotificationSent
	n.Attempts++
	n.LastError = ""
	n.SentAt = timePtr(sentAt)
	return nil
}

func (r *NotificationRepository) MarkAttemptFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, final bool) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	n.Attempts++
	n.LastError = errMsg
	n.NextAttemptAt = nextAttempt
	if final {
		n.Status = types.NotificationFailed
	}
	return nil
}

// Reset gives a failed row a fresh attempt budget.
func (r *NotificationRepository) Reset(ctx context.Context, id string, now time.Time) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	if n.Status != types.NotificationFailed {
		return types.NewAppError(types.ErrCodeConflictNotFailed, "only failed notifications can be retried", nil)
	}
	n.Status = types.NotificationPending
	n.Attempts = 0
	n.NextAttemptAt = now
	return nil
}

func (r *NotificationRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	deleted := 0
	for id, n := range r.s.notifications {
		if n.Status == types.NotificationSent && n.SentAt != nil && n.SentAt.Before(cutoff) {
			delete(r.s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// JobLockRepository implements types.JobLockRepository.
type JobLockRepository struct {
	s *Store
}

// Acquire takes lockID for ttl unless another unexpired holder has it.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if held, ok := r.s.locks[lockID]; ok && !held.expiresAt.Before(now) {
		return false, nil
	}
	r.s.locks[lockID] = jobLock{workerID: workerID, expiresAt: now.Add(ttl)}
	return true, nil
}

// JobHistoryRepository implements types.JobHistoryRepository.
type JobHistoryRepository struct {
	s *Store
}

func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run := &types.JobRun{
		ID:        int64(len(r.s.history) + 1),
		JobType:   jobType,
		StartedAt: r.s.now(),
		Status:    "running",
	}
	r.s.history = append(r.s.history, run)
	return run.ID, nil
}

func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if id < 1 || int(id) > len(r.s.history) {
		return types.NewAppError(types.ErrCodeInternalDB, "job history entry not found", nil)
	}
	run := r.s.history[id-1]
	run.FinishedAt = timePtr(r.s.now())
	run.Status = status
	run.Items = items
	if jobErr != nil {
		run.Error = jobErr.Error()
	}
	return nil
}

func (r *JobHistoryRepository) Recent(ctx context.Context, limit int) ([]*types.JobRun, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*types.JobRun, 0, min(limit, len(r.s.history)))
	for i := len(r.s.history) - 1; i >= 0 && len(out) < limit; i-- {
		run := *r.s.history[i]
		out = append(out, &run)
	}
	return out, nil
}
