package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/subwatch/subwatch/internal/domain"
	"github.com/subwatch/subwatch/internal/pkg/ctxlog"
)

// Authenticator issues and validates access tokens.
type Authenticator interface {
	GenerateToken(ctx context.Context, user *domain.User) (string, error)
	ValidateToken(ctx context.Context, token string) (userID string, err error)
}

// Service implements identity business logic.
type Service struct {
	repo Repository
	auth Authenticator
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{
		repo: repo,
		auth: auth,
	}
}

// RegisterInput contains data for registering a user.
type RegisterInput struct {
	Email    string
	Password string
	Phone    *string
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if _, err := s.repo.GetUserByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:              input.Email,
		PasswordHash:       hash,
		Phone:              input.Phone,
		EmailAlertsEnabled: true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return user, nil
}

// LoginInput contains credentials for logging in.
type LoginInput struct {
	Email    string
	Password string
}

// Login verifies credentials and returns the user with an access token.
func (s *Service) Login(ctx context.Context, input LoginInput) (*domain.User, string, error) {
	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	ok, err := VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.auth.GenerateToken(ctx, user)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	return user, token, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// UpdateProfileInput contains optional profile changes.
type UpdateProfileInput struct {
	Phone              *string
	EmailAlertsEnabled *bool
}

// UpdateProfile applies profile changes and returns the updated user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Phone != nil {
		user.Phone = input.Phone
	}
	if input.EmailAlertsEnabled != nil {
		user.EmailAlertsEnabled = *input.EmailAlertsEnabled
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// ValidateToken implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, error) {
	return s.auth.ValidateToken(ctx, token)
}
