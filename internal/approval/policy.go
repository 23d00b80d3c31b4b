// Package approval decides who may sign off on the estimated cost of a
// request and applies those decisions.
package approval

import (
	"fmt"
	"time"

	"upkeep/internal/types"
)

// Decision is the outcome an approver records.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == Approve || d == Reject
}

// CanSelfApprove reports whether actor may incur costCents without anyone
// else signing off. Admins and system actors are unlimited; maintenance
// staff are bounded by their approval limit; operators always need approval
// for non-zero costs.
func CanSelfApprove(actor types.Actor, costCents int64) bool {
	if costCents <= 0 || actor.IsSystem() {
		return true
	}
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleMaintenance:
		return actor.ApprovalLimitCents >= costCents
	default:
		return false
	}
}

// InitialStatus is the approval status a new request starts with when
// created by actor.
func InitialStatus(actor types.Actor, costCents int64) types.ApprovalStatus {
	if CanSelfApprove(actor, costCents) {
		return types.ApprovalNotRequired
	}
	return types.ApprovalPending
}

// CanApprove returns nil when actor may decide on req, otherwise an AppError
// describing why not.
func CanApprove(actor types.Actor, req *types.Request) error {
	if req.ApprovalStatus != types.ApprovalPending {
		return types.NewAppError(types.ErrCodeConflictNotPending,
			fmt.Sprintf("request approval is %s, not pending", req.ApprovalStatus), nil)
	}
	if actor.IsSystem() {
		return nil
	}

	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleMaintenance:
		if actor.ID == req.RequestedBy {
			return types.NewAppError(types.ErrCodePermissionSelfApproval, "requests cannot be approved by their requester", nil)
		}
		if actor.ApprovalLimitCents < req.EstimatedCostCents {
			return types.NewAppErrorWithDetails(types.ErrCodePermissionApprovalLimit,
				"estimated cost exceeds your approval limit", nil,
				map[string]any{
					"estimated_cost_cents": req.EstimatedCostCents,
					"approval_limit_cents": actor.ApprovalLimitCents,
				})
		}
		return nil
	default:
		return types.NewAppError(types.ErrCodePermissionRole, "operators cannot approve requests", nil)
	}
}

// Apply records decision on req. Callers check CanApprove first.
// Rejecting a request also closes it.
func Apply(req *types.Request, actor types.Actor, decision Decision, now time.Time) {
	at := now.UTC()
	req.ApprovedBy = actor.ID
	req.ApprovedAt = &at
	switch decision {
	case Approve:
		req.ApprovalStatus = types.ApprovalApproved
	case Reject:
		req.ApprovalStatus = types.ApprovalRejected
		req.Status = types.RequestClosed
		req.ResolvedAt = nil
	}
}

// TransitionStatus writes a new status onto req. Work cannot start or finish
// while the cost is still awaiting approval. Moving to resolved stamps
// ResolvedAt; leaving resolved clears it.
func TransitionStatus(req *types.Request, to types.RequestStatus, now time.Time) error {
	if req.Status == to {
		return nil
	}
	if req.ApprovalStatus == types.ApprovalPending && (to == types.RequestInProgress || to == types.RequestResolved) {
		return types.NewAppError(types.ErrCodeConflictApprovalPending,
			fmt.Sprintf("request cannot move to %s while approval is pending", to), nil)
	}

	req.Status = to
	if to == types.RequestResolved {
		at := now.UTC()
		req.ResolvedAt = &at
	} else {
		req.ResolvedAt = nil
	}
	return nil
}

// Reprice changes the estimated cost of req on behalf of actor and reports
// whether the request now needs a fresh approval. A cost rise that actor
// cannot cover reopens approval; a pending request that actor can now
// cover no longer needs it. Rejected requests keep their decision.
func Reprice(req *types.Request, actor types.Actor, costCents int64) bool {
	previous := req.EstimatedCostCents
	if costCents == previous {
		return false
	}
	req.EstimatedCostCents = costCents

	if req.ApprovalStatus == types.ApprovalRejected {
		return false
	}
	if costCents < previous && req.ApprovalStatus != types.ApprovalPending {
		return false
	}

	if CanSelfApprove(actor, costCents) {
		if req.ApprovalStatus == types.ApprovalPending {
			req.ApprovalStatus = types.ApprovalNotRequired
		}
		return false
	}
	if req.ApprovalStatus == types.ApprovalPending {
		return false
	}
	req.ApprovalStatus = types.ApprovalPending
	req.ApprovedBy = ""
	req.ApprovedAt = nil
	return true
}
