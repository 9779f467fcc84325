package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.UserProfile, error)
	VerifyEmail(ctx context.Context, email, code string) (*models.UserProfile, error)
	ResendVerificationCode(ctx context.Context, email string) error
	Login(ctx context.Context, username, password, clientIP string) (*services.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResendResetCode(ctx context.Context, email string) error
	CheckResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
	CurrentUser(ctx context.Context, userID string) (*models.UserProfile, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs. Presence is checked by the services so the messages match
// each flow; tags here only bound sizes and formats.

// RegisterRequest is checked by the service after the bot check, so it carries
// no validation tags.
type RegisterRequest struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptchaToken"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=128"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"max=254"`
}

type EmailCodeRequest struct {
	Email string `json:"email" validate:"max=254"`
	Code  string `json:"code" validate:"max=64"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email" validate:"max=254"`
	Code            string `json:"code" validate:"max=64"`
	NewPassword     string `json:"newPassword" validate:"max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"max=128"`
}

// LoginResponse carries the session token and the public profile.
type LoginResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Token   string              `json:"token"`
	User    *models.UserProfile `json:"user"`
}

// UserResponse wraps a single profile.
type UserResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	User    *models.UserProfile `json:"user"`
}

// Register handles account registration
// @Summary Register with username and password
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} SuccessResponse
// @Failure 400,403,409,502 {object} pkghttp.ErrorResponse
// @Router /register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	_, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:          req.Email,
		Username:       req.Username,
		Password:       req.Password,
		RecaptchaToken: req.RecaptchaToken,
		ClientIP:       pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, services.MsgRegistered)
}

// Login handles username/password login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400,401 {object} pkghttp.ErrorResponse
// @Router /login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: services.MsgLoginSuccessful,
		Token:   result.Token,
		User:    result.User,
	})
}

// VerifyEmail handles POST /verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, services.MsgEmailVerified)
}

// ResendVerificationCode handles POST /resend-verification-code
func (h *AuthHandler) ResendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResendVerificationCode(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, services.MsgVerificationResent)
}

// ForgotPasswordRequest handles POST /forgot-password-request. The response
// does not depend on whether the email is registered.
func (h *AuthHandler) ForgotPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, services.MsgResetRequested)
}

// ResendResetCode handles POST /resend-reset-code
func (h *AuthHandler) ResendResetCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResendResetCode(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, services.MsgResetResent)
}

// CheckResetCode handles POST /forgot-password-check-code
func (h *AuthHandler) CheckResetCode(w http.ResponseWriter, r *http.Request) {
	var req EmailCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.CheckResetCode(r.Context(), req.Email, req.Code); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, services.MsgCodeValid)
}

// ForgotPasswordVerify handles POST /forgot-password-verify
func (h *AuthHandler) ForgotPasswordVerify(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), services.ResetPasswordInput{
		Email:           req.Email,
		Code:            req.Code,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
		ClientIP:        pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, services.MsgPasswordChanged)
}

// CurrentUser handles GET /protected/user
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, models.ErrInvalidToken.Message)
		return
	}

	profile, err := h.service.CurrentUser(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{Success: true, User: profile})
}
