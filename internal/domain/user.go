package domain

import "time"

type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	Phone              *string   `json:"phone,omitempty"`
	EmailAlertsEnabled bool      `json:"email_alerts_enabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasPhone reports whether the user has a phone number on file.
func (u *User) HasPhone() bool {
	return u.Phone != nil && *u.Phone != ""
}
