package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"streamhub/internal/db"
	"streamhub/internal/models"
)

var (
	ErrTokenGeneration     = errors.New("token generation failed")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// UserStore is the slice of the user repository sessions need.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetRefreshTokenHash(ctx context.Context, id string, hash *string) error
}

// SessionService keeps exactly one live refresh token per user. Issuing a new
// pair overwrites the stored token, which revokes the previous one.
type SessionService struct {
	jwt   *JWTService
	users UserStore
}

func NewSessionService(jwtService *JWTService, users UserStore) *SessionService {
	return &SessionService{jwt: jwtService, users: users}
}

func (s *SessionService) IssueTokenPair(ctx context.Context, userID string) (*TokenPair, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		slog.Error("error loading user for token issue", "error", err, "user_id", userID)
		return nil, ErrTokenGeneration
	}

	accessToken, accessExpiresAt, err := s.jwt.IssueAccessToken(user)
	if err != nil {
		slog.Error("error issuing access token", "error", err, "user_id", userID)
		return nil, ErrTokenGeneration
	}
	refreshToken, refreshExpiresAt, err := s.jwt.IssueRefreshToken(user.ID)
	if err != nil {
		slog.Error("error issuing refresh token", "error", err, "user_id", userID)
		return nil, ErrTokenGeneration
	}

	hash := HashToken(refreshToken)
	if err := s.users.SetRefreshTokenHash(ctx, user.ID, &hash); err != nil {
		slog.Error("error storing refresh token", "error", err, "user_id", userID)
		return nil, ErrTokenGeneration
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// VerifyRefreshToken returns the user id the token was issued to, provided it
// is still the user's current refresh token. Storage failures other than a
// missing user are returned as-is.
func (s *SessionService) VerifyRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.jwt.ParseRefreshToken(token)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", err
	}

	if user.RefreshTokenHash == nil {
		return "", ErrInvalidRefreshToken
	}
	presented := HashToken(token)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(*user.RefreshTokenHash)) != 1 {
		return "", ErrInvalidRefreshToken
	}

	return user.ID, nil
}

// Rotate exchanges a valid refresh token for a new pair. The presented token
// stops being accepted immediately.
func (s *SessionService) Rotate(ctx context.Context, token string) (*TokenPair, error) {
	userID, err := s.VerifyRefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.IssueTokenPair(ctx, userID)
}

// Revoke empties the user's refresh token slot.
func (s *SessionService) Revoke(ctx context.Context, userID string) error {
	return s.users.SetRefreshTokenHash(ctx, userID, nil)
}
