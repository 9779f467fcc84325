package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

type contextKey string

const (
	// UserContextKey is the key for storing session claims in context
	UserContextKey contextKey = "user"
)

// TokenVerifier is satisfied by *TokenManager.
type TokenVerifier interface {
	Verify(token string) (*models.SessionClaims, error)
}

// AuthMiddleware requires a valid bearer token and injects its claims into the context.
// Every failure yields the same 401 body.
func AuthMiddleware(tv TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, models.ErrInvalidToken.Message)
				return
			}

			claims, err := tv.Verify(tokenString)
			if err != nil {
				logger.Debug("bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				pkghttp.WriteUnauthorized(w, models.ErrInvalidToken.Message)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		if claims == nil {
			pkghttp.WriteUnauthorized(w, models.ErrInvalidToken.Message)
			return
		}
		if !claims.IsAdmin() {
			pkghttp.WriteForbidden(w, models.ErrAdminRequired.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext extracts session claims from request context
func GetUserFromContext(r *http.Request) *models.SessionClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
