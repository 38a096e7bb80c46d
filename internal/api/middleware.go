package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"streamhub/internal/auth"
	"streamhub/internal/constants"
	"streamhub/internal/db"
	"streamhub/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// AuthMiddleware only reads: it resolves the access token to a sanitized user
// and never touches stored state.
type AuthMiddleware struct {
	jwtService *auth.JWTService
	users      *db.UserRepository
}

func NewAuthMiddleware(jwtService *auth.JWTService, users *db.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService, users: users}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := accessTokenFromRequest(r)
		if !ok {
			unauthorized(w, "Unauthorized request")
			return
		}

		claims, err := m.jwtService.ParseAccessToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired access token")
			return
		}

		user, err := m.users.FindByID(r.Context(), claims.UserID)
		if errors.Is(err, db.ErrNotFound) {
			unauthorized(w, "Invalid access token")
			return
		}
		if err != nil {
			slog.Error("error loading user for access token", "error", err, "user_id", claims.UserID)
			internalError(w, "")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user.Sanitized())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessTokenFromRequest prefers the cookie and falls back to a bearer
// Authorization header.
func accessTokenFromRequest(r *http.Request) (string, bool) {
	if token := cookieValue(r, constants.AccessTokenCookie); token != "" {
		return token, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// CurrentUser returns the user attached by RequireAuth, or nil.
func CurrentUser(r *http.Request) *models.User {
	if user, ok := r.Context().Value(userKey).(*models.User); ok {
		return user
	}
	return nil
}
