package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/theLastOfCats/anishelf/internal/auth"
	"github.com/theLastOfCats/anishelf/internal/session"
)

type contextKey string

const UsernameKey contextKey = "username"

type Middleware struct {
	Session *session.Session
	Log     *slog.Logger
}

func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			JSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			JSONError(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			JSONError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// A valid token outlives sign-out, so the profile must still exist.
		profile, err := m.Session.Profile(r.Context())
		if errors.Is(err, session.ErrNotSignedIn) || (err == nil && profile.Username != claims.Username) {
			m.Log.Debug("token refers to a profile that is gone", "username", claims.Username)
			JSONError(w, "Profile not found", http.StatusUnauthorized)
			return
		}
		if err != nil {
			m.Log.Error("profile lookup failed", "error", err)
			JSONError(w, "Storage error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUsername(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(UsernameKey).(string)
	return username, ok
}
