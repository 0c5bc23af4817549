// Package alerts provides renewal alert scheduling, dispatch and dedup.
package alerts

import (
	"context"

	"github.com/subwatch/subwatch/internal/domain"
)

// Ledger is the durable record of alerts that have already fired. At most
// one entry exists per (subscription, offset, channel) triple; that
// uniqueness is the correctness invariant of the whole subsystem.
type Ledger interface {
	// HasSent reports whether an entry exists for the triple.
	HasSent(ctx context.Context, subscriptionID string, offset int, channel domain.AlertChannel) (bool, error)

	// RecordSent inserts an entry for the triple. Returns
	// ErrAlertAlreadyRecorded if one already exists.
	RecordSent(ctx context.Context, subscriptionID string, offset int, channel domain.AlertChannel) error

	// ListByUser returns the alert log entries for all subscriptions owned
	// by the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.AlertLogEntry, error)
}
