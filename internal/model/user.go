package model

import "time"

// User maps a tracker login to a display name and, once linked, a chat
// user id used for mentions.
type User struct {
	Login      string    `json:"login" db:"login"`
	FullName   string    `json:"full_name" db:"full_name"`
	ChatUserID string    `json:"chat_user_id" db:"chat_user_id"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
