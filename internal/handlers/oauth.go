package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// OAuthServiceInterface completes a Google sign-in.
type OAuthServiceInterface interface {
	HandleCallback(ctx context.Context, code, clientIP string) (*services.LoginResult, error)
}

// GoogleConfigSource exposes the browser-safe OAuth client settings.
type GoogleConfigSource interface {
	PublicConfig() services.GoogleConfig
}

// OAuthHandler bridges the Google redirect back into the SPA.
type OAuthHandler struct {
	service     OAuthServiceInterface
	config      GoogleConfigSource
	frontendURL string
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
}

func NewOAuthHandler(service OAuthServiceInterface, config GoogleConfigSource, frontendURL string, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		service:     service,
		config:      config,
		frontendURL: frontendURL,
		ipConfig:    ipConfig,
		logger:      logger,
	}
}

// GoogleConfigResponse wraps services.GoogleConfig.
type GoogleConfigResponse struct {
	Success bool `json:"success"`
	services.GoogleConfig
}

// GoogleConfig handles GET /google-config
func (h *OAuthHandler) GoogleConfig(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, GoogleConfigResponse{Success: true, GoogleConfig: h.config.PublicConfig()})
}

// GoogleCallback handles GET /auth/callback/google. Every outcome is a
// redirect to the frontend: /Main with the session on success, /Login with
// an error message otherwise.
func (h *OAuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.redirectError(w, r, "Google authentication failed: "+providerErr)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, "No authorization code received")
		return
	}

	result, err := h.service.HandleCallback(r.Context(), code, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		public := models.Public(err)
		if status, _ := statusFor(public.Kind); status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "google callback failed", slog.Any("error", err))
		}
		h.redirectError(w, r, public.Message)
		return
	}

	user, err := json.Marshal(result.User)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "encode profile for redirect", slog.Any("error", err))
		h.redirectError(w, r, models.Public(err).Message)
		return
	}

	params := url.Values{}
	params.Set("token", result.Token)
	params.Set("user", string(user))
	http.Redirect(w, r, h.frontendURL+"/Main?"+params.Encode(), http.StatusFound)
}

func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, h.frontendURL+"/Login?"+url.Values{"error": {message}}.Encode(), http.StatusFound)
}
