// Package jwt provides JWT-based token issuing and validation.
package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/subwatch/subwatch/internal/domain"
	"github.com/subwatch/subwatch/internal/identity"
)

// Config contains JWT authenticator configuration.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Authenticator implements identity.Authenticator using HS256 JWTs.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config}
}

type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed access token for the user.
func (a *Authenticator) GenerateToken(_ context.Context, user *domain.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	})

	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies an access token, returning the user ID.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil {
		return "", identity.ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.UserID == "" {
		return "", identity.ErrInvalidToken
	}

	return c.UserID, nil
}
