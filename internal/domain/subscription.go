package domain

import "time"

// Subscription represents a recurring paid service a user tracks.
// RenewalDate is a calendar date; the time component is always midnight UTC.
type Subscription struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	RenewalDate time.Time `json:"renewal_date"`
	Note        *string   `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
