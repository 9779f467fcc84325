package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestLogger returns a logger that drops everything.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSession adds session claims to the request context as AuthMiddleware would.
func WithSession(req *http.Request, userID, username string) *http.Request {
	claims := &models.SessionClaims{
		Email:       username + "@example.com",
		Username:    username,
		LoginMethod: models.LoginMethodUsername,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks status, error code and the user-facing message.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError, expectedMessage string) {
	t.Helper()
	var resp pkghttp.ErrorResponse
	AssertJSONResponse(t, w, expectedStatus, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	if expectedMessage != "" {
		assert.Equal(t, expectedMessage, resp.Message)
	}
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc               func(ctx context.Context, in services.RegisterInput) (*models.UserProfile, error)
	VerifyEmailFunc            func(ctx context.Context, email, code string) (*models.UserProfile, error)
	ResendVerificationCodeFunc func(ctx context.Context, email string) error
	LoginFunc                  func(ctx context.Context, username, password, clientIP string) (*services.LoginResult, error)
	RequestPasswordResetFunc   func(ctx context.Context, email string) error
	ResendResetCodeFunc        func(ctx context.Context, email string) error
	CheckResetCodeFunc         func(ctx context.Context, email, code string) error
	ResetPasswordFunc          func(ctx context.Context, in services.ResetPasswordInput) error
	CurrentUserFunc            func(ctx context.Context, userID string) (*models.UserProfile, error)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.UserProfile, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return &models.UserProfile{}, nil
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, email, code string) (*models.UserProfile, error) {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, email, code)
	}
	return &models.UserProfile{}, nil
}

func (m *MockAuthService) ResendVerificationCode(ctx context.Context, email string) error {
	if m.ResendVerificationCodeFunc != nil {
		return m.ResendVerificationCodeFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) Login(ctx context.Context, username, password, clientIP string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password, clientIP)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.RequestPasswordResetFunc != nil {
		return m.RequestPasswordResetFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) ResendResetCode(ctx context.Context, email string) error {
	if m.ResendResetCodeFunc != nil {
		return m.ResendResetCodeFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) CheckResetCode(ctx context.Context, email, code string) error {
	if m.CheckResetCodeFunc != nil {
		return m.CheckResetCodeFunc(ctx, email, code)
	}
	return nil
}

func (m *MockAuthService) ResetPassword(ctx context.Context, in services.ResetPasswordInput) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, in)
	}
	return nil
}

func (m *MockAuthService) CurrentUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx, userID)
	}
	return nil, models.ErrUserNotFound
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	ListUsersFunc  func(ctx context.Context, search string, page, pageSize int) (*services.UserPage, error)
	UpdateUserFunc func(ctx context.Context, actorID string, in services.AdminUpdateInput) (*models.UserProfile, error)
	DeleteUserFunc func(ctx context.Context, actorID, id string) error
}

func (m *MockAdminService) ListUsers(ctx context.Context, search string, page, pageSize int) (*services.UserPage, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, search, page, pageSize)
	}
	return &services.UserPage{Users: []*models.UserSummary{}, Page: 1, PageSize: services.DefaultPageSize}, nil
}

func (m *MockAdminService) UpdateUser(ctx context.Context, actorID string, in services.AdminUpdateInput) (*models.UserProfile, error) {
	if m.UpdateUserFunc != nil {
		return m.UpdateUserFunc(ctx, actorID, in)
	}
	return &models.UserProfile{ID: in.ID, Username: in.Username, Email: in.Email}, nil
}

func (m *MockAdminService) DeleteUser(ctx context.Context, actorID, id string) error {
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, actorID, id)
	}
	return nil
}

// MockOAuthService implements OAuthServiceInterface for testing
type MockOAuthService struct {
	HandleCallbackFunc func(ctx context.Context, code, clientIP string) (*services.LoginResult, error)
}

func (m *MockOAuthService) HandleCallback(ctx context.Context, code, clientIP string) (*services.LoginResult, error) {
	if m.HandleCallbackFunc != nil {
		return m.HandleCallbackFunc(ctx, code, clientIP)
	}
	return nil, models.ErrUpstream
}

// StaticGoogleConfig implements GoogleConfigSource.
type StaticGoogleConfig services.GoogleConfig

func (c StaticGoogleConfig) PublicConfig() services.GoogleConfig {
	return services.GoogleConfig(c)
}

// MockPinger implements Pinger.
type MockPinger struct {
	Err error
}

func (m MockPinger) HealthCheck(context.Context) error {
	return m.Err
}
