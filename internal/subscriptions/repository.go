// Package subscriptions provides subscription management and due-date queries.
package subscriptions

import (
	"context"
	"time"

	"github.com/subwatch/subwatch/internal/domain"
)

// Repository defines the interface for subscription data access.
type Repository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, id string) error

	// FindByRenewalDate returns subscriptions whose renewal date equals the
	// given calendar date exactly, ordered by id.
	FindByRenewalDate(ctx context.Context, date time.Time) ([]domain.Subscription, error)
}
