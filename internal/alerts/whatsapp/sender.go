// Package whatsapp provides whatsapp alert sending.
package whatsapp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/subwatch/subwatch/internal/alerts"
	"github.com/subwatch/subwatch/internal/domain"
)

// ErrProviderNotConfigured is returned for every send until a real whatsapp
// provider integration lands. Reporting failure keeps the dispatcher from
// recording deliveries that never happened.
var ErrProviderNotConfigured = errors.New("whatsapp sender: no provider configured")

// Config holds whatsapp sender configuration.
type Config struct {
	Enabled bool
}

// Sender implements the whatsapp alert channel. No provider integration
// exists yet, so every send fails.
type Sender struct {
	config Config
}

// NewSender creates a new whatsapp sender.
func NewSender(config Config) *Sender {
	slog.Info("whatsapp sender configured",
		"enabled", config.Enabled,
	)
	return &Sender{config: config}
}

// Type returns the channel type.
func (s *Sender) Type() domain.AlertChannel {
	return domain.AlertChannelWhatsApp
}

// Send always fails: there is no provider to hand the message to. A success
// here would be recorded as delivered and suppress the alert for good.
func (s *Sender) Send(_ context.Context, notification alerts.Notification) error {
	if !s.config.Enabled {
		return alerts.ErrChannelUnavailable
	}

	slog.Debug("whatsapp delivery requested but no provider is configured",
		"to", notification.To,
		"subject", notification.Subject,
	)

	return ErrProviderNotConfigured
}
