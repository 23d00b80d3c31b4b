package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by tests and by
// job-runner reference times.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// LocationRepository is the data access contract for locations.
type LocationRepository interface {
	Create(ctx context.Context, loc *Location) error
	GetByID(ctx context.Context, id string) (*Location, error)
	List(ctx context.Context, filter ListFilter) ([]*Location, PageInfo, error)
	Update(ctx context.Context, loc *Location) error
	Delete(ctx context.Context, id string) error
}

// AssetRepository is the data access contract for assets.
type AssetRepository interface {
	Create(ctx context.Context, asset *Asset) error
	GetByID(ctx context.Context, id string) (*Asset, error)
	List(ctx context.Context, filter AssetFilter) ([]*Asset, PageInfo, error)
	Update(ctx context.Context, asset *Asset) error
	Delete(ctx context.Context, id string) error
	CountByLocation(ctx context.Context, locationID string) (int, error)
}

// TemplateRepository is the data access contract for maintenance templates.
type TemplateRepository interface {
	Create(ctx context.Context, tpl *Template) error
	GetByID(ctx context.Context, id string) (*Template, error)
	List(ctx context.Context, filter TemplateFilter) ([]*Template, PageInfo, error)
	ListActive(ctx context.Context) ([]*Template, error)
	Update(ctx context.Context, tpl *Template) error
	Delete(ctx context.Context, id string) error
	// MarkGenerated stamps last_generated_date. It is the only writer of
	// that column.
	MarkGenerated(ctx context.Context, id string, on Date) error
}

// RequestRepository is the data access contract for requests.
type RequestRepository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, filter RequestFilter) ([]*Request, PageInfo, error)
	Update(ctx context.Context, req *Request) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[RequestStatus]int, error)
}

// UserRepository is the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByTokenHash(ctx context.Context, hash string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]*User, PageInfo, error)
	ListByRole(ctx context.Context, role UserRole) ([]*User, error)
	Update(ctx context.Context, user *User) error
	SetTokenHash(ctx context.Context, id string, hash string) error
}

// NotificationRepository is the data access contract for the email queue.
type NotificationRepository interface {
	Enqueue(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id string) (*Notification, error)
	List(ctx context.Context, filter NotificationFilter) ([]*Notification, PageInfo, error)
	// ClaimDue leases up to limit pending rows whose next_attempt_at <= now
	// and attempts < maxAttempts by pushing next_attempt_at to now+lease.
	ClaimDue(ctx context.Context, now time.Time, limit int, maxAttempts int, lease time.Duration) ([]*Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	// MarkAttemptFailed increments attempts and either reschedules the row
	// at nextAttempt or, when final is true, moves it to failed.
	MarkAttemptFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, final bool) error
	// Reset moves a failed row back to pending with a fresh attempt budget.
	Reset(ctx context.Context, id string, now time.Time) error
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// JobLockRepository provides cross-process mutual exclusion for scheduled jobs.
type JobLockRepository interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistoryRepository records scheduled job executions.
type JobHistoryRepository interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]*JobRun, error)
}

// GenerationRepos are the repositories the template runner writes through
// inside one unit of work.
type GenerationRepos struct {
	Requests  RequestRepository
	Templates TemplateRepository
}

// TxManager runs fn as a single unit of work. Backends without transactions
// run fn directly.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos GenerationRepos) error) error
}

// Logger defines the structured logging interface used by components that
// do not take a concrete *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}
