package alerts

import (
	"context"

	"github.com/subwatch/subwatch/internal/domain"
)

// Notification is a rendered alert ready for transport.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications over a single channel. A send failure of any
// kind is reported as a plain error; provider selection and fallback are the
// sender's concern.
type Sender interface {
	// Type returns the channel this sender delivers to.
	Type() domain.AlertChannel

	// Send delivers a single notification.
	Send(ctx context.Context, notification Notification) error
}
