package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/handlers"
	"github.com/BradenHooton/authgate/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted under /api.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Admin  *handlers.AdminHandler
	OAuth  *handlers.OAuthHandler
	CSRF   *handlers.CSRFHandler
	Health http.HandlerFunc
}

// Guards are the per-route protections.
type Guards struct {
	Tokens     auth.TokenVerifier
	CSRF       middleware.TokenVerifier
	AdminLimit func(http.Handler) http.Handler
}

// RegisterRoutes registers all application routes on router, which is
// expected to be mounted at /api.
func RegisterRoutes(router chi.Router, h Handlers, g Guards, logger *slog.Logger) {
	// Public reads
	router.Get("/csrf-token", h.CSRF.Token)
	router.Get("/google-config", h.OAuth.GoogleConfig)
	router.Get("/auth/callback/google", h.OAuth.GoogleCallback)
	router.Get("/health", h.Health)

	// Public state-changing routes require a CSRF token
	router.Group(func(r chi.Router) {
		r.Use(middleware.CSRFProtection(g.CSRF, logger))

		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/verify-email", h.Auth.VerifyEmail)
		r.Post("/resend-verification-code", h.Auth.ResendVerificationCode)
		r.Post("/forgot-password-request", h.Auth.ForgotPasswordRequest)
		r.Post("/forgot-password-check-code", h.Auth.CheckResetCode)
		r.Post("/forgot-password-verify", h.Auth.ForgotPasswordVerify)
		r.Post("/resend-reset-code", h.Auth.ResendResetCode)
	})

	// Protected routes - bearer token required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(g.Tokens, logger))

		r.Get("/protected/user", h.Auth.CurrentUser)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			if g.AdminLimit != nil {
				r.Use(g.AdminLimit)
			}
			r.Get("/admin/users", h.Admin.ListUsers)
			r.Post("/admin/user.update", h.Admin.UpdateUser)
			r.Post("/admin/user.delete", h.Admin.DeleteUser)
		})
	})
}
