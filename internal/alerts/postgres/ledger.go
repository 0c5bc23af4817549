// Package postgres provides PostgreSQL implementation of the alert ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/subwatch/subwatch/internal/alerts"
	"github.com/subwatch/subwatch/internal/domain"
)

// uniqueViolation is the postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// Ledger implements alerts.Ledger using PostgreSQL. The unique index on
// (subscription_id, "offset", channel) backstops the check-then-act flow in
// the dispatcher.
type Ledger struct {
	db *pgxpool.Pool
}

// NewLedger creates a new PostgreSQL ledger.
func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

// HasSent reports whether an entry exists for the triple.
func (l *Ledger) HasSent(ctx context.Context, subscriptionID string, offset int, channel domain.AlertChannel) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alert_logs
			WHERE subscription_id = $1 AND "offset" = $2 AND channel = $3
		)
	`
	var exists bool
	err := l.db.QueryRow(ctx, query, subscriptionID, offset, string(channel)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check alert log: %w", err)
	}
	return exists, nil
}

// RecordSent inserts an entry for the triple.
func (l *Ledger) RecordSent(ctx context.Context, subscriptionID string, offset int, channel domain.AlertChannel) error {
	query := `
		INSERT INTO alert_logs (subscription_id, "offset", channel)
		VALUES ($1, $2, $3)
	`
	_, err := l.db.Exec(ctx, query, subscriptionID, offset, string(channel))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return alerts.ErrAlertAlreadyRecorded
		}
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

// ListByUser returns the alert log entries for all subscriptions owned by the
// user, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]domain.AlertLogEntry, error) {
	query := `
		SELECT a.id, a.subscription_id, a."offset", a.channel, a.sent_at
		FROM alert_logs a
		JOIN subscriptions s ON s.id = a.subscription_id
		WHERE s.user_id = $1
		ORDER BY a.sent_at DESC, a.id
	`
	rows, err := l.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query alert logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AlertLogEntry, 0)
	for rows.Next() {
		var entry domain.AlertLogEntry
		err := rows.Scan(
			&entry.ID,
			&entry.SubscriptionID,
			&entry.Offset,
			&entry.Channel,
			&entry.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
