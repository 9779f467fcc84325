package handlers

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// CSRFTokenSource issues secrets and derives tokens from them.
type CSRFTokenSource interface {
	IssueSecret() (string, error)
	DeriveToken(secret string) (string, error)
}

// CSRFHandler hands out double-submit tokens bound to the secret cookie.
type CSRFHandler struct {
	guard  CSRFTokenSource
	cookie auth.CookieConfig
	logger *slog.Logger
}

func NewCSRFHandler(guard CSRFTokenSource, cookie auth.CookieConfig, logger *slog.Logger) *CSRFHandler {
	return &CSRFHandler{guard: guard, cookie: cookie, logger: logger}
}

type CSRFTokenResponse struct {
	Success   bool   `json:"success"`
	CSRFToken string `json:"csrfToken"`
}

// Token handles GET /csrf-token. An existing secret cookie is reused so
// tokens already held by other tabs stay valid.
func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	secret := auth.GetCSRFSecretCookie(r)
	if secret == "" {
		var err error
		if secret, err = h.guard.IssueSecret(); err != nil {
			h.logger.ErrorContext(r.Context(), "issue csrf secret", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Failed to issue CSRF token")
			return
		}
		auth.SetCSRFSecretCookie(w, secret, h.cookie)
	}

	token, err := h.guard.DeriveToken(secret)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "derive csrf token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to issue CSRF token")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{Success: true, CSRFToken: token})
}
