package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mosaaedak/chatrelay/internal/auth"
	"github.com/mosaaedak/chatrelay/internal/models"
)

type contextKey string

// claimsContextKey carries the verified admin claims through the request
// context.
const claimsContextKey contextKey = "adminClaims"

// requireAuth wraps an admin handler with bearer-token verification.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			slog.Warn("Server.requireAuth: missing bearer token", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Authentication required"))
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			slog.Warn("Server.requireAuth: token rejected", "path", r.URL.Path, "error", err)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or expired token"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims)))
	}
}

// claimsFromContext returns the verified claims set by requireAuth.
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// recoverPanics converts handler panics into 500 responses instead of
// tearing down the connection.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Server: handler panicked", "path", r.URL.Path, "panic", rec)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
