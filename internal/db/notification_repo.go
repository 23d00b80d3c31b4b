package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"upkeep/internal/types"
)

// NotificationRepository provides data access for the notifications table,
// which doubles as the outbound email queue polled by the notification worker.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `n.id, n.kind, n.recipient, n.subject, n.body, n.reference_id,
	n.status, n.attempts, n.last_error, n.next_attempt_at, n.created_at, n.sent_at`

func scanNotification(row pgx.Row) (*types.Notification, error) {
	var n types.Notification
	var referenceID, lastError *string
	err := row.Scan(
		&n.ID,
		&n.Kind,
		&n.Recipient,
		&n.Subject,
		&n.Body,
		&referenceID,
		&n.Status,
		&n.Attempts,
		&lastError,
		&n.NextAttemptAt,
		&n.CreatedAt,
		&n.SentAt,
	)
	if err != nil {
		return nil, err
	}
	n.ReferenceID = derefString(referenceID)
	n.LastError = derefString(lastError)
	return &n, nil
}

// Enqueue inserts a pending notification. A zero NextAttemptAt means
// "deliver as soon as possible".
func (r *NotificationRepository) Enqueue(ctx context.Context, n *types.Notification) error {
	if n.Status == "" {
		n.Status = types.NotificationPending
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO notifications (id, kind, recipient, subject, body, reference_id,
		 status, attempts, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), COALESCE($10, NOW()))
		 RETURNING next_attempt_at, created_at`,
		n.ID,
		n.Kind,
		n.Recipient,
		n.Subject,
		n.Body,
		nilIfEmpty(n.ReferenceID),
		n.Status,
		n.Attempts,
		nilIfZeroTime(n.NextAttemptAt),
		nilIfZeroTime(n.CreatedAt),
	).Scan(&n.NextAttemptAt, &n.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to enqueue notification", err)
	}
	return nil
}

// GetByID retrieves a queued notification.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*types.Notification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications n
		 WHERE n.id = $1`,
		id,
	)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve notification", err)
	}
	return n, nil
}

// List returns queue rows newest first, optionally narrowed by status.
func (r *NotificationRepository) List(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, types.PageInfo, error) {
	limit := types.ClampLimit(filter.Limit)
	q := newListQuery("n")
	if filter.Status != "" {
		q.where("n.status = ?", filter.Status)
	}
	q.after(filter.Cursor)
	sql, args := q.build(notificationColumns, "notifications", limit)

	results, err := r.queryNotifications(ctx, sql, args...)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	results, info := pageOf(results, limit, func(n *types.Notification) types.Cursor {
		return types.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return results, info, nil
}

// ClaimDue leases up to limit due rows. The lease is taken by moving
// next_attempt_at forward; FOR UPDATE SKIP LOCKED lets several pollers run
// side by side without claiming the same row.
func (r *NotificationRepository) ClaimDue(ctx context.Context, now time.Time, limit int, maxAttempts int, lease time.Duration) ([]*types.Notification, error) {
	return r.queryNotifications(ctx,
		`UPDATE notifications n SET next_attempt_at = $1
		 WHERE n.id IN (
		   SELECT id FROM notifications
		   WHERE status = 'pending' AND next_attempt_at <= $2 AND attempts < $3
		   ORDER BY next_attempt_at, id
		   LIMIT $4
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+notificationColumns,
		now.Add(lease),
		now,
		maxAttempts,
		limit,
	)
}

func (r *NotificationRepository) queryNotifications(ctx context.Context, sql string, args ...any) ([]*types.Notification, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query notifications", err)
	}
	defer rows.Close()

	var results []*types.Notification
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", scanErr)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}
	return results, nil
}

// MarkSent records a successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET status = 'sent', attempts = attempts + 1, last_error = NULL, sent_at = $1
		 WHERE id = $2`,
		sentAt,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// MarkAttemptFailed records a failed delivery attempt. When final is true
// the row leaves the queue as failed.
func (r *NotificationRepository) MarkAttemptFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, final bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2,
		     status = CASE WHEN $3 THEN 'failed' ELSE status END
		 WHERE id = $4`,
		errMsg,
		nextAttempt,
		final,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record notification failure", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// Reset returns a failed row to the queue with a fresh attempt budget.
func (r *NotificationRepository) Reset(ctx context.Context, id string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET status = 'pending', attempts = 0, next_attempt_at = $1
		 WHERE id = $2 AND status = 'failed'`,
		now,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset notification", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "missing" from "not failed" with a follow-up read.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return types.NewAppError(types.ErrCodeConflictNotFailed, "only failed notifications can be retried", nil)
	}
	return nil
}

// DeleteSentBefore purges delivered rows older than cutoff and returns the
// number removed.
func (r *NotificationRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE status = 'sent' AND sent_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge notifications", err)
	}
	return int(tag.RowsAffected()), nil
}
