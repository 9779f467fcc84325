package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
)

// AdminServiceInterface defines the account administration contract.
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, search string, page, pageSize int) (*services.UserPage, error)
	UpdateUser(ctx context.Context, actorID string, in services.AdminUpdateInput) (*models.UserProfile, error)
	DeleteUser(ctx context.Context, actorID, id string) error
}

// AdminHandler handles admin-only account HTTP requests. Routes are mounted
// behind auth.AuthMiddleware and auth.RequireAdmin.
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

type AdminUpdateRequest struct {
	ID       string `json:"id" validate:"max=64"`
	Username string `json:"username" validate:"max=64"`
	Email    string `json:"email" validate:"omitempty,max=254,email"`
}

type AdminDeleteRequest struct {
	ID string `json:"id" validate:"max=64"`
}

// UsersResponse is one page of redacted accounts.
type UsersResponse struct {
	Success  bool                  `json:"success"`
	Users    []*models.UserSummary `json:"users"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
}

func actorID(r *http.Request) string {
	if claims := auth.GetUserFromContext(r); claims != nil {
		return claims.Subject
	}
	return ""
}

// ListUsers handles GET /admin/users?search=&page=&pageSize=
// Unparseable paging values fall back to the defaults.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	result, err := h.service.ListUsers(r.Context(), q.Get("search"), page, pageSize)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UsersResponse{
		Success:  true,
		Users:    result.Users,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

// UpdateUser handles POST /admin/user.update
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req AdminUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.service.UpdateUser(r.Context(), actorID(r), services.AdminUpdateInput{
		ID:       req.ID,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{Success: true, Message: "User updated.", User: profile})
}

// DeleteUser handles POST /admin/user.delete
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req AdminDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.DeleteUser(r.Context(), actorID(r), req.ID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User deleted.")
}
