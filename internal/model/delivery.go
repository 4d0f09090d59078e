package model

import "time"

// DeliveryKind names the event a notification was sent for.
type DeliveryKind string

const (
	DeliveryIssue   DeliveryKind = "issue"
	DeliveryComment DeliveryKind = "comment"
	DeliveryChange  DeliveryKind = "change"
)

// Delivery records a notification that was dispatched to a chat.
type Delivery struct {
	// ID is the unique identifier for this delivery.
	ID string `json:"id" db:"id"`

	ProjectID string       `json:"project_id" db:"project_id"`
	IssueID   string       `json:"issue_id" db:"issue_id"`
	Kind      DeliveryKind `json:"kind" db:"kind"`
	ChatID    string       `json:"chat_id" db:"chat_id"`

	// Formatted is false when the chat rejected markdown and the message
	// went out as plain text.
	Formatted bool `json:"formatted" db:"formatted"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BacklogEntry is an issue that failed during a sweep and must be
// re-evaluated against Floor instead of the project watermark.
type BacklogEntry struct {
	ProjectID string    `db:"project_id"`
	IssueID   string    `db:"issue_id"`
	Floor     int64     `db:"floor"`
	Attempts  int       `db:"attempts"`
	LastError string    `db:"last_error"`
	UpdatedAt time.Time `db:"updated_at"`
}
