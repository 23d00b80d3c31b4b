package db

import (
	"context"
	"time"

	"upkeep/internal/types"
)

// JobLockRepository backs the dispatcher's per-day locks with the job_locks
// table. Several worker replicas may fire the same cron entry; the upsert
// lets exactly one of them through.
type JobLockRepository struct {
	db    DBTX
	clock types.Clock
}

// NewJobLockRepository creates a JobLockRepository. A nil clock uses wall time.
func NewJobLockRepository(db DBTX, clock types.Clock) *JobLockRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JobLockRepository{db: db, clock: clock}
}

// Acquire claims lockID ("generate_requests:2025-03-10") for ttl. It reports
// false when another worker holds an unexpired claim.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := r.clock.Now().UTC()

	// A stale row is taken over by the conflict branch; a live one fails the
	// WHERE and the statement touches nothing.
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks AS l (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET worker_id = EXCLUDED.worker_id, locked_at = EXCLUDED.locked_at,
		     expires_at = EXCLUDED.expires_at
		 WHERE l.expires_at < EXCLUDED.locked_at`,
		lockID,
		workerID,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// JobHistoryRepository records one job_history row per dispatched task.
type JobHistoryRepository struct {
	db    DBTX
	clock types.Clock
}

// NewJobHistoryRepository creates a JobHistoryRepository. A nil clock uses
// wall time.
func NewJobHistoryRepository(db DBTX, clock types.Clock) *JobHistoryRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JobHistoryRepository{db: db, clock: clock}
}

// Start opens a run in the running state and returns its id.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status)
		 VALUES ($1, $2, 'running')
		 RETURNING id`,
		jobType,
		r.clock.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to record job start", err)
	}
	return id, nil
}

// Finish closes a run with its outcome. jobErr, when set, is stored as text.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var msg *string
	if jobErr != nil {
		s := jobErr.Error()
		msg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = $1, status = $2, items_count = $3, error = $4
		 WHERE id = $5`,
		r.clock.Now().UTC(),
		status,
		items,
		msg,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record job outcome", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalDB, "job history entry not found", nil)
	}
	return nil
}

// Recent lists the latest runs, newest first.
func (r *JobHistoryRepository) Recent(ctx context.Context, limit int) ([]*types.JobRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_type, started_at, finished_at, status, items_count, error
		 FROM job_history
		 ORDER BY started_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list job history", err)
	}
	defer rows.Close()

	var runs []*types.JobRun
	for rows.Next() {
		var run types.JobRun
		var msg *string
		if err := rows.Scan(&run.ID, &run.JobType, &run.StartedAt, &run.FinishedAt,
			&run.Status, &run.Items, &msg); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job history row", err)
		}
		run.Error = derefString(msg)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job history rows", err)
	}
	return runs, nil
}
