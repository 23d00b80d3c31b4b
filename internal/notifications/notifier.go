// Package notifications turns domain events into rows of the email queue and
// delivers queued rows through an email provider.
package notifications

import (
	"context"
	"errors"
	"log/slog"

	"upkeep/internal/types"
)

// Queue is the write side of the notification repository.
type Queue interface {
	Enqueue(ctx context.Context, n *types.Notification) error
}

// Directory resolves user IDs to recipients.
type Directory interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	ListByRole(ctx context.Context, role types.UserRole) ([]*types.User, error)
}

// Notifier enqueues one notification per recipient of a domain event. It
// only writes to the queue; delivery happens in the Worker.
type Notifier struct {
	queue    Queue
	users    Directory
	renderer *Renderer
	clock    types.Clock
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. A nil renderer uses the embedded
// templates; nil clock and logger fall back to RealClock and slog.Default().
func NewNotifier(queue Queue, users Directory, renderer *Renderer, clock types.Clock, logger *slog.Logger) *Notifier {
	if renderer == nil {
		renderer = MustNewRenderer()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{queue: queue, users: users, renderer: renderer, clock: clock, logger: logger}
}

// RequestCreated tells the assignee about a new request.
func (n *Notifier) RequestCreated(ctx context.Context, req *types.Request) error {
	return n.notifyUser(ctx, req.AssignedTo, types.NotifyRequestCreated, MessageData{Request: req})
}

// RequestAssigned tells the new assignee about a request handed to them.
func (n *Notifier) RequestAssigned(ctx context.Context, req *types.Request) error {
	return n.notifyUser(ctx, req.AssignedTo, types.NotifyRequestAssigned, MessageData{Request: req})
}

// RequestGenerated tells the assignee about a request generated from tpl.
func (n *Notifier) RequestGenerated(ctx context.Context, req *types.Request, tpl *types.Template) error {
	data := MessageData{Request: req}
	if tpl != nil {
		data.TemplateTitle = tpl.Title
	}
	return n.notifyUser(ctx, req.AssignedTo, types.NotifyRequestGenerated, data)
}

// ApprovalRequested asks every active admin to decide on req.
func (n *Notifier) ApprovalRequested(ctx context.Context, req *types.Request) error {
	admins, err := n.users.ListByRole(ctx, types.RoleAdmin)
	if err != nil {
		return err
	}
	var errs []error
	for _, admin := range admins {
		if admin.ID == req.RequestedBy {
			continue
		}
		errs = append(errs, n.enqueue(ctx, admin, types.NotifyApprovalRequested, MessageData{Request: req}))
	}
	return errors.Join(errs...)
}

// ApprovalDecided tells the requester about the decision.
func (n *Notifier) ApprovalDecided(ctx context.Context, req *types.Request) error {
	return n.notifyUser(ctx, req.RequestedBy, types.NotifyApprovalDecided, MessageData{Request: req})
}

// StatusChanged tells the requester that req moved away from previous.
func (n *Notifier) StatusChanged(ctx context.Context, req *types.Request, previous types.RequestStatus) error {
	return n.notifyUser(ctx, req.RequestedBy, types.NotifyStatusChanged, MessageData{Request: req, PreviousStatus: previous})
}

// notifyUser enqueues for one user ID. Empty IDs, the system actor and
// inactive users are skipped silently.
func (n *Notifier) notifyUser(ctx context.Context, userID string, kind types.NotificationKind, data MessageData) error {
	if userID == "" || userID == types.SystemActorID {
		return nil
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			n.logger.WarnContext(ctx, "notification recipient not found", "user_id", userID, "kind", string(kind))
			return nil
		}
		return err
	}
	return n.enqueue(ctx, user, kind, data)
}

func (n *Notifier) enqueue(ctx context.Context, user *types.User, kind types.NotificationKind, data MessageData) error {
	if !user.Active || user.Email == "" {
		return nil
	}
	data.RecipientName = user.Name
	subject, body, err := n.renderer.Render(kind, data)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render notification", err)
	}

	now := n.clock.Now()
	row := &types.Notification{
		ID:            types.NewNotificationID(),
		Kind:          kind,
		Recipient:     user.Email,
		Subject:       subject,
		Body:          body,
		Status:        types.NotificationPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if data.Request != nil {
		row.ReferenceID = data.Request.ID
	}
	if err := n.queue.Enqueue(ctx, row); err != nil {
		return err
	}
	n.logger.DebugContext(ctx, "notification enqueued",
		"notification_id", row.ID,
		"kind", string(kind),
		"reference_id", row.ReferenceID,
	)
	return nil
}
