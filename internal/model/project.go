package model

import "time"

// Project is a tracker project relayed into a chat.
type Project struct {
	// ID is the tracker short name (e.g. "PRJ"); issue ids are prefixed by it.
	ID string `json:"id" db:"id"`

	// TrackerID is the value used in tracker queries for this project.
	TrackerID string `json:"tracker_id" db:"tracker_id"`

	Name string `json:"name" db:"name"`

	// SearchFilter is an extra tracker query appended to every issue search.
	SearchFilter string `json:"search_filter" db:"search_filter"`

	// ChatID is the chat the project is relayed to. Empty means untracked.
	ChatID string `json:"chat_id" db:"chat_id"`

	// LastChecked is the watermark in epoch milliseconds. Every tracker event
	// at or before it has been processed.
	LastChecked int64 `json:"last_checked" db:"last_checked"`

	LastError     string     `json:"last_error" db:"last_error"`
	LastAttemptAt *time.Time `json:"last_attempt_at" db:"last_attempt_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Tracked reports whether the project is linked to a chat.
func (p Project) Tracked() bool {
	return p.ChatID != ""
}

// Watermark returns LastChecked as a time, or the zero time when unset.
func (p Project) Watermark() time.Time {
	if p.LastChecked <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.LastChecked).UTC()
}
