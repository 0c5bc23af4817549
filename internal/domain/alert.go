package domain

import "time"

// AlertChannel identifies a delivery channel for renewal alerts.
type AlertChannel string

// Alert channels.
const (
	AlertChannelEmail    AlertChannel = "email"
	AlertChannelWhatsApp AlertChannel = "whatsapp"
)

// IsValid checks if the alert channel is valid.
func (c AlertChannel) IsValid() bool {
	switch c {
	case AlertChannelEmail, AlertChannelWhatsApp:
		return true
	}
	return false
}

// AlertLogEntry is the durable record of a delivered alert. At most one entry
// exists per (subscription, offset, channel) triple.
type AlertLogEntry struct {
	ID             string       `json:"id"`
	SubscriptionID string       `json:"subscription_id"`
	Offset         int          `json:"offset"`
	Channel        AlertChannel `json:"channel"`
	SentAt         time.Time    `json:"sent_at"`
}
