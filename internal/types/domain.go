package types

import (
	"time"
)

// Location is a site that holds assets.
type Location struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Address     string     `json:"address,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// Asset is a tracked piece of equipment.
type Asset struct {
	ID              string      `json:"id"`
	LocationID      string      `json:"location_id"`
	Name            string      `json:"name"`
	Category        string      `json:"category,omitempty"`
	SerialNumber    string      `json:"serial_number,omitempty"`
	Status          AssetStatus `json:"status"`
	PurchaseDate    Date        `json:"purchase_date"`
	WarrantyExpires Date        `json:"warranty_expires"`
	Notes           string      `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	DeletedAt       *time.Time  `json:"-"`
}

// User is a person who can act on the system through an API token.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Role               UserRole  `json:"role"`
	ApprovalLimitCents int64     `json:"approval_limit_cents"`
	APITokenHash       string    `json:"-"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Template is a recurring maintenance definition from which requests are
// generated. LastGeneratedDate is only written by the run operation.
type Template struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AssetID            string     `json:"asset_id,omitempty"`
	LocationID         string     `json:"location_id,omitempty"`
	IntervalDays       int        `json:"interval_days"`
	AllowedWeekdays    []int      `json:"allowed_weekdays"`
	Priority           Priority   `json:"priority"`
	AssignedTo         string     `json:"assigned_to,omitempty"`
	EstimatedCostCents int64      `json:"estimated_cost_cents"`
	IsActive           bool       `json:"is_active"`
	LastGeneratedDate  Date       `json:"last_generated_date"`
	CreatedBy          string     `json:"created_by,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"-"`
}

// Request is a concrete piece of maintenance or repair work.
type Request struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	AssetID            string         `json:"asset_id,omitempty"`
	LocationID         string         `json:"location_id,omitempty"`
	TemplateID         string         `json:"template_id,omitempty"`
	Priority           Priority       `json:"priority"`
	Status             RequestStatus  `json:"status"`
	RequestedBy        string         `json:"requested_by"`
	AssignedTo         string         `json:"assigned_to,omitempty"`
	DueDate            Date           `json:"due_date"`
	EstimatedCostCents int64          `json:"estimated_cost_cents"`
	ApprovalStatus     ApprovalStatus `json:"approval_status"`
	ApprovedBy         string         `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time     `json:"approved_at,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          *time.Time     `json:"-"`
}

// Notification is a row in the outbound email queue.
type Notification struct {
	ID            string             `json:"id"`
	Kind          NotificationKind   `json:"kind"`
	Recipient     string             `json:"recipient"`
	Subject       string             `json:"subject"`
	Body          string             `json:"body"`
	ReferenceID   string             `json:"reference_id,omitempty"`
	Status        NotificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	LastError     string             `json:"last_error,omitempty"`
	NextAttemptAt time.Time          `json:"next_attempt_at"`
	CreatedAt     time.Time          `json:"created_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
}

// JobRun is one recorded scheduled job execution.
type JobRun struct {
	ID         int64      `json:"id"`
	JobType    string     `json:"job_type"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Items      int        `json:"items"`
	Error      string     `json:"error,omitempty"`
}

// SendInput is a fully rendered email handed to an EmailProvider.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyText    string
	ReferenceID string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}
