package types

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode is the machine-readable code returned in API error bodies. Its
// prefix selects the HTTP status.
type ErrorCode string

const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail   ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidValue   ErrorCode = "validation_invalid_value"
	ErrCodeValidationInvalidDate    ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidWeekday ErrorCode = "validation_invalid_weekday"
	ErrCodeValidationInvalidCursor  ErrorCode = "validation_invalid_cursor"
	ErrCodeValidationInvalidJSON    ErrorCode = "validation_invalid_json"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthUserInactive ErrorCode = "auth_user_inactive"

	// Permission (403)
	ErrCodePermissionRole          ErrorCode = "permission_role_insufficient"
	ErrCodePermissionApprovalLimit ErrorCode = "permission_approval_limit_exceeded"
	ErrCodePermissionSelfApproval  ErrorCode = "permission_self_approval"

	// Rate limiting (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundLocation     ErrorCode = "not_found_location"
	ErrCodeNotFoundAsset        ErrorCode = "not_found_asset"
	ErrCodeNotFoundTemplate     ErrorCode = "not_found_template"
	ErrCodeNotFoundRequest      ErrorCode = "not_found_request"
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"

	// Conflict (409)
	ErrCodeConflictLocationName    ErrorCode = "conflict_location_name_exists"
	ErrCodeConflictEmail           ErrorCode = "conflict_email_exists"
	ErrCodeConflictLocationInUse   ErrorCode = "conflict_location_in_use"
	ErrCodeConflictApprovalPending ErrorCode = "conflict_approval_pending"
	ErrCodeConflictNotPending      ErrorCode = "conflict_approval_not_pending"
	ErrCodeConflictNotFailed       ErrorCode = "conflict_notification_not_failed"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeEmailBlocked          ErrorCode = "upstream_email_blocked"
)

// HTTPStatus maps the code's prefix to a status. Unknown prefixes are 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError carries a code and a client-safe message. Err is logged but never
// serialized.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of e with details merged over its own.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &AppError{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}

// NewAppError wraps err, which may be nil, under code.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
