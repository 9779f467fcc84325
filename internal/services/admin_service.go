package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/authgate/internal/models"
	pkgauth "github.com/BradenHooton/authgate/pkg/auth"
	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// AdminStore is the persistence contract for account administration.
type AdminStore interface {
	FindByID(ctx context.Context, id string) (*models.UserAccount, error)
	FindByUsername(ctx context.Context, username string) (*models.UserAccount, error)
	Create(ctx context.Context, u *models.UserAccount) (*models.UserAccount, error)
	UpdateFields(ctx context.Context, id string, upd models.UserUpdate) (*models.UserAccount, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, filter models.UserFilter, page, pageSize int) ([]*models.UserSummary, int64, error)
}

// AdminUpdateInput renames an account or changes its email.
type AdminUpdateInput struct {
	ID       string
	Username string
	Email    string
}

// UserPage is one page of admin search results.
type UserPage struct {
	Users    []*models.UserSummary
	Total    int64
	Page     int
	PageSize int
}

// AdminService handles admin-only account operations
type AdminService struct {
	store       AdminStore
	bcryptCost  int
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAdminService(store AdminStore, bcryptCost int, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		store:       store,
		bcryptCost:  bcryptCost,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// NormalizePage clamps paging parameters: page starts at 1 and pageSize
// defaults to DefaultPageSize, capped at MaxPageSize.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// ListUsers returns a redacted page of accounts matching search.
func (s *AdminService) ListUsers(ctx context.Context, search string, page, pageSize int) (*UserPage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	users, total, err := s.store.Search(ctx, models.UserFilter{Search: strings.TrimSpace(search)}, page, pageSize)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.UserSummary{}
	}
	return &UserPage{Users: users, Total: total, Page: page, PageSize: pageSize}, nil
}

// UpdateUser changes username and email. Only the reserved account may carry
// the reserved username; the store enforces that and uniqueness.
func (s *AdminService) UpdateUser(ctx context.Context, actorID string, in AdminUpdateInput) (*models.UserProfile, error) {
	id := strings.TrimSpace(in.ID)
	username := strings.TrimSpace(in.Username)
	email := models.NormalizeEmail(in.Email)
	if id == "" || username == "" || email == "" {
		return nil, required("All fields required")
	}

	updated, err := s.store.UpdateFields(ctx, id, models.UserUpdate{Username: &username, Email: &email})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.EventAdminUserUpdate, actorID, updated.ID, map[string]string{
		"username": updated.Username,
	})
	return updated.Profile(), nil
}

// DeleteUser removes an account. The reserved account cannot be deleted.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, id string) error {
	if id = strings.TrimSpace(id); id == "" {
		return required("User id required")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.auditLogger.LogAccountAction(ctx, pkglogger.EventAdminUserDelete, actorID, id, nil)
	return nil
}

// EnsureAdmin creates the reserved account on first start when credentials
// are configured. An existing reserved account is left untouched.
func (s *AdminService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	if _, err := s.store.FindByUsername(ctx, models.ReservedUsername); err == nil {
		return false, nil
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return false, err
	}

	if err := checkPasswordPolicy(password); err != nil {
		return false, err
	}
	hashed, err := pkgauth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, err
	}

	account, err := s.store.Create(ctx, &models.UserAccount{
		Username:      models.ReservedUsername,
		Email:         email,
		PasswordHash:  &hashed,
		LoginMethod:   models.LoginMethodUsername,
		EmailVerified: true,
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("admin account created", slog.String("user_id", account.ID))
	return true, nil
}
