package approval

import (
	"context"
	"log/slog"

	"upkeep/internal/types"
)

// Notifier is the subset of the notification service used here. Failures
// are logged and never fail the calling operation.
type Notifier interface {
	RequestCreated(ctx context.Context, req *types.Request) error
	ApprovalRequested(ctx context.Context, req *types.Request) error
	ApprovalDecided(ctx context.Context, req *types.Request) error
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Requests types.RequestRepository
	Notifier Notifier
	Clock    types.Clock
	Logger   *slog.Logger
}

// Service owns request submission and approval decisions.
type Service struct {
	requests types.RequestRepository
	notifier Notifier
	clock    types.Clock
	logger   *slog.Logger
}

// NewService creates a Service. A nil Clock defaults to RealClock and a nil
// Logger to slog.Default().
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		requests: cfg.Requests,
		notifier: cfg.Notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Submit creates a request on behalf of actor.
//
// Flow:
//  1. Stamp requester, open status and the initial approval status.
//  2. Persist the request.
//  3. Notify the assignee and, if approval is pending, every active admin.
func (s *Service) Submit(ctx context.Context, req *types.Request, actor types.Actor) error {
	req.RequestedBy = actor.ID
	req.Status = types.RequestOpen
	req.ApprovalStatus = InitialStatus(actor, req.EstimatedCostCents)
	req.ApprovedBy = ""
	req.ApprovedAt = nil
	req.ResolvedAt = nil
	if req.Priority == "" {
		req.Priority = types.PriorityMedium
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return err
	}

	if s.notifier == nil {
		return nil
	}
	s.logNotifyErr(ctx, req, s.notifier.RequestCreated(ctx, req))
	if req.ApprovalStatus == types.ApprovalPending {
		s.logNotifyErr(ctx, req, s.notifier.ApprovalRequested(ctx, req))
	}
	return nil
}

// Decide records an approval decision by actor on the request with the given
// ID and returns the updated request.
//
// Flow:
//  1. Load the request.
//  2. Check that actor may decide (pending, role, limit, not own request).
//  3. Apply the decision and persist.
//  4. Notify the requester.
func (s *Service) Decide(ctx context.Context, requestID string, actor types.Actor, decision Decision) (*types.Request, error) {
	if !decision.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidValue, "decision must be approve or reject", nil)
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := CanApprove(actor, req); err != nil {
		return nil, err
	}

	Apply(req, actor, decision, s.clock.Now())
	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "approval decided",
		"request_id", req.ID,
		"decision", string(decision),
		"actor_id", actor.ID,
	)
	if s.notifier != nil {
		s.logNotifyErr(ctx, req, s.notifier.ApprovalDecided(ctx, req))
	}
	return req, nil
}

func (s *Service) logNotifyErr(ctx context.Context, req *types.Request, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue notification", "request_id", req.ID, "error", err)
	}
}
