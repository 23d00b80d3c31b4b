package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"upkeep/internal/types"
)

const (
	jobStatusSuccess = "success"
	jobStatusFailed  = "failed"
)

// Generator creates requests for the templates due at now.
type Generator interface {
	RunDue(ctx context.Context, now time.Time) (int, error)
}

// NotificationPurger deletes delivered notifications sent before cutoff.
type NotificationPurger interface {
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Metrics records job outcomes.
type Metrics interface {
	RecordJob(ctx context.Context, task string, success bool, items int, d time.Duration)
}

// DispatcherConfig holds the dependencies for creating a Dispatcher.
type DispatcherConfig struct {
	Generator     Generator
	Notifications NotificationPurger
	Locks         types.JobLockRepository
	History       types.JobHistoryRepository
	// Location is the timezone whose calendar date keys the job lock.
	Location  *time.Location
	LockTTL   time.Duration
	Retention time.Duration
	WorkerID  string
	Metrics   Metrics
	Clock     types.Clock
	Logger    *slog.Logger
}

// Dispatcher runs one task at a time under the per-day job lock.
type Dispatcher struct {
	generator     Generator
	notifications NotificationPurger
	locks         types.JobLockRepository
	history       types.JobHistoryRepository
	loc           *time.Location
	lockTTL       time.Duration
	retention     time.Duration
	workerID      string
	metrics       Metrics
	clock         types.Clock
	logger        *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil History skips job history; nil
// Location, Clock and Logger default to UTC, RealClock and slog.Default().
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		generator:     cfg.Generator,
		notifications: cfg.Notifications,
		locks:         cfg.Locks,
		history:       cfg.History,
		loc:           cfg.Location,
		lockTTL:       cfg.LockTTL,
		retention:     cfg.Retention,
		workerID:      cfg.WorkerID,
		metrics:       cfg.Metrics,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.lockTTL <= 0 {
		d.lockTTL = time.Hour
	}
	if d.retention <= 0 {
		d.retention = 30 * 24 * time.Hour
	}
	if d.clock == nil {
		d.clock = types.RealClock{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// LockID returns the lock key for task on the schedule-local date of now,
// e.g. "generate_requests:2024-06-03".
func (d *Dispatcher) LockID(task TaskType, now time.Time) string {
	return fmt.Sprintf("%s:%s", task, now.In(d.loc).Format(time.DateOnly))
}

// Execute runs task with now as the reference time.
//
// Flow:
//  1. Acquire the job lock; a held lock means another worker already ran
//     the task today and the call returns a skipped Result.
//  2. Record the start in job history (best effort).
//  3. Dispatch to the task.
//  4. Record the outcome in job history and metrics.
func (d *Dispatcher) Execute(ctx context.Context, task TaskType, now time.Time) (Result, error) {
	result := Result{Task: task, LockID: d.LockID(task, now)}
	if !task.Valid() {
		return result, types.NewAppError(types.ErrCodeValidationInvalidValue,
			fmt.Sprintf("unknown task %q", task), nil)
	}

	acquired, err := d.locks.Acquire(ctx, result.LockID, d.workerID, d.lockTTL)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", result.LockID,
			"error", err,
		)
		return result, fmt.Errorf("acquiring job lock %s: %w", result.LockID, err)
	}
	if !acquired {
		d.logger.InfoContext(ctx, "job lock held, skipping",
			"lock_id", result.LockID,
		)
		result.Skipped = true
		return result, nil
	}

	var jobID int64
	if d.history != nil {
		jobID, err = d.history.Start(ctx, string(task))
		if err != nil {
			d.logger.WarnContext(ctx, "failed to start job history",
				"task", task,
				"error", err,
			)
			jobID = 0
		}
	}

	start := d.clock.Now()
	items, execErr := d.dispatch(ctx, task, now)
	result.Items = items
	result.Elapsed = d.clock.Now().Sub(start)

	status := jobStatusSuccess
	if execErr != nil {
		status = jobStatusFailed
	}
	if jobID != 0 {
		if err := d.history.Finish(ctx, jobID, status, items, execErr); err != nil {
			d.logger.WarnContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"error", err,
			)
		}
	}
	if d.metrics != nil {
		d.metrics.RecordJob(ctx, string(task), execErr == nil, items, result.Elapsed)
	}

	if execErr != nil {
		d.logger.ErrorContext(ctx, "task failed",
			"task", task,
			"items", items,
			"error", execErr,
		)
		return result, fmt.Errorf("task %s failed: %w", task, execErr)
	}
	d.logger.InfoContext(ctx, "task complete",
		"task", task,
		"items", items,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskGenerateRequests:
		return d.generator.RunDue(ctx, now)
	case TaskPurgeNotifications:
		return d.notifications.DeleteSentBefore(ctx, now.Add(-d.retention))
	default:
		return 0, fmt.Errorf("no handler for task %q", task)
	}
}
