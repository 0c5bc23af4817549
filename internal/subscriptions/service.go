package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/subwatch/subwatch/internal/domain"
	"github.com/subwatch/subwatch/internal/pkg/ctxlog"
)

// Service implements subscription business logic.
type Service struct {
	repo Repository
}

// NewService creates a new subscriptions service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput contains data for creating a subscription.
type CreateInput struct {
	Name        string
	RenewalDate time.Time
	Note        *string
}

// Create creates a subscription owned by the given user.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Subscription, error) {
	sub := &domain.Subscription{
		UserID:      userID,
		Name:        input.Name,
		RenewalDate: truncateToDate(input.RenewalDate),
		Note:        input.Note,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	ctxlog.FromContext(ctx).Info("subscription created",
		"subscription_id", sub.ID,
		"user_id", userID,
		"renewal_date", sub.RenewalDate.Format("2006-01-02"),
	)
	return sub, nil
}

// Get returns a subscription if it is owned by the given user.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	return sub, nil
}

// ListForUser returns all subscriptions owned by the user.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

// UpdateInput contains data for updating a subscription.
type UpdateInput struct {
	Name        string
	RenewalDate time.Time
	Note        *string
}

// Update replaces the mutable fields of a subscription owned by the user.
func (s *Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*domain.Subscription, error) {
	sub, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	sub.Name = input.Name
	sub.RenewalDate = truncateToDate(input.RenewalDate)
	sub.Note = input.Note

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription owned by the user.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// FindDueOn returns subscriptions whose renewal date equals the given
// calendar date exactly. An empty result is not an error.
func (s *Service) FindDueOn(ctx context.Context, date time.Time) ([]domain.Subscription, error) {
	return s.repo.FindByRenewalDate(ctx, truncateToDate(date))
}

// truncateToDate drops the time component, keeping a midnight UTC date.
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
