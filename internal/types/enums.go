package types

// UserRole defines what a user may do. The hierarchy is
// operator < maintenance < admin.
type UserRole string

const (
	RoleOperator    UserRole = "operator"
	RoleMaintenance UserRole = "maintenance"
	RoleAdmin       UserRole = "admin"
)

// roleRank orders roles for "at least" comparisons.
var roleRank = map[UserRole]int{
	RoleOperator:    1,
	RoleMaintenance: 2,
	RoleAdmin:       3,
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks equal to or above required.
// Unknown roles never satisfy the check.
func (r UserRole) AtLeast(required UserRole) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[required]
}

// AssetStatus describes the operational state of an asset.
type AssetStatus string

const (
	AssetOperational  AssetStatus = "operational"
	AssetNeedsService AssetStatus = "needs_service"
	AssetOutOfService AssetStatus = "out_of_service"
	AssetRetired      AssetStatus = "retired"
)

// Priority ranks maintenance work.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// RequestStatus is the lifecycle of a request. Transitions are direct writes.
type RequestStatus string

const (
	RequestOpen       RequestStatus = "open"
	RequestInProgress RequestStatus = "in_progress"
	RequestResolved   RequestStatus = "resolved"
	RequestClosed     RequestStatus = "closed"
)

// ApprovalStatus tracks the cost approval of a request.
type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "not_required"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
)

// NotificationStatus is the delivery state of a queued notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationKind identifies the domain event a notification reports.
type NotificationKind string

const (
	NotifyRequestCreated    NotificationKind = "request_created"
	NotifyRequestAssigned   NotificationKind = "request_assigned"
	NotifyRequestGenerated  NotificationKind = "request_generated"
	NotifyApprovalRequested NotificationKind = "approval_requested"
	NotifyApprovalDecided   NotificationKind = "approval_decided"
	NotifyStatusChanged     NotificationKind = "status_changed"
)
