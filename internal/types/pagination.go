package types

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DefaultPageSize and MaxPageSize bound list endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// Cursor is the decoded keyset position of a list page: rows are ordered by
// (created_at DESC, id DESC).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// Encode serializes the cursor into an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Cursor.Encode. An empty token is
// the first page.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, NewAppError(ErrCodeValidationInvalidCursor, "invalid pagination cursor", err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, NewAppError(ErrCodeValidationInvalidCursor, "invalid pagination cursor", nil)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, NewAppError(ErrCodeValidationInvalidCursor, "invalid pagination cursor", fmt.Errorf("parse cursor time: %w", err))
	}
	return Cursor{CreatedAt: t, ID: id}, nil
}

// ClampLimit applies the default page size and upper bound.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// ListFilter is the shared pagination input of list operations.
type ListFilter struct {
	Limit  int
	Cursor Cursor
}

// AssetFilter narrows asset listings.
type AssetFilter struct {
	ListFilter
	LocationID string
	Status     AssetStatus
}

// TemplateFilter narrows template listings.
type TemplateFilter struct {
	ListFilter
	AssetID    string
	ActiveOnly bool
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	ListFilter
	Status         RequestStatus
	ApprovalStatus ApprovalStatus
	AssetID        string
	AssignedTo     string
	RequestedBy    string
}

// NotificationFilter narrows queue listings.
type NotificationFilter struct {
	ListFilter
	Status NotificationStatus
}
