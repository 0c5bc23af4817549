// Package postgres provides PostgreSQL implementation of subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/subwatch/subwatch/internal/domain"
	"github.com/subwatch/subwatch/internal/subscriptions"
)

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new subscription.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, name, renewal_date, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		sub.UserID,
		sub.Name,
		sub.RenewalDate,
		sub.Note,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
}

// GetByID retrieves a subscription by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `
		SELECT id, user_id, name, renewal_date, note, created_at, updated_at
		FROM subscriptions
		WHERE id = $1
	`
	var sub domain.Subscription
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Name,
		&sub.RenewalDate,
		&sub.Note,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	normalizeDate(&sub)
	return &sub, nil
}

// ListByUser retrieves all subscriptions for a user.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	query := `
		SELECT id, user_id, name, renewal_date, note, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY renewal_date, id
	`
	return r.querySubscriptions(ctx, query, userID)
}

// Update updates an existing subscription.
func (r *Repository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET name = $2, renewal_date = $3, note = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.Name,
		sub.RenewalDate,
		sub.Note,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscriptions.ErrSubscriptionNotFound
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}

// FindByRenewalDate retrieves subscriptions renewing on the exact date,
// ordered by id for reproducible dispatch logs.
func (r *Repository) FindByRenewalDate(ctx context.Context, date time.Time) ([]domain.Subscription, error) {
	query := `
		SELECT id, user_id, name, renewal_date, note, created_at, updated_at
		FROM subscriptions
		WHERE renewal_date = $1
		ORDER BY id
	`
	return r.querySubscriptions(ctx, query, date)
}

func (r *Repository) querySubscriptions(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.Name,
			&sub.RenewalDate,
			&sub.Note,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		normalizeDate(&sub)
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// normalizeDate pins the scanned DATE column to midnight UTC. pgx scans DATE
// into a local-time midnight depending on the session timezone.
func normalizeDate(sub *domain.Subscription) {
	y, m, d := sub.RenewalDate.Date()
	sub.RenewalDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
