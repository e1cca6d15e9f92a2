package auth

import (
	"context"
	"fmt"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssueToken signs an HS256 JWT for the user and records its id so that
// Logout can revoke it.
func (s *Service) IssueToken(ctx context.Context, user *models.User, name string) (string, error) {
	now := s.now()
	record := &models.AccessToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		ID:        record.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return signed, nil
}

// Authenticate resolves a bearer token to its user. Any failure, including a
// revoked token, is ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("rejected token", "err", err)
		return nil, ErrUnauthenticated
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	live, err := s.tokens.Exists(ctx, tokenID, userID)
	if err != nil {
		return nil, fmt.Errorf("look up token: %w", err)
	}
	if !live {
		s.logger.Debug("revoked token", "user", userID, "token", tokenID)
		return nil, ErrUnauthenticated
	}
	return s.User(ctx, userID)
}
