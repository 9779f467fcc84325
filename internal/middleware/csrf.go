package middleware

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// TokenVerifier checks a CSRF token against the caller's secret.
type TokenVerifier interface {
	Verify(secret, token string) bool
}

// CSRFProtection rejects state-changing requests unless the X-CSRF-Token
// header was derived from the secret in the caller's csrfSecret cookie.
// Safe methods pass through.
func CSRFProtection(guard TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			secret := auth.GetCSRFSecretCookie(r)
			token := r.Header.Get(auth.CSRFHeaderName)
			if !guard.Verify(secret, token) {
				logger.Warn("CSRF validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("has_secret", secret != ""),
					slog.Bool("has_token", token != ""))
				pkghttp.WriteForbidden(w, models.ErrCSRFInvalid.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
