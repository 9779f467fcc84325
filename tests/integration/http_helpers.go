//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/BradenHooton/authgate/internal/routes"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// SentEmail represents a captured email message
type SentEmail struct {
	Kind string
	To   string
	Code string
}

// MockMailer captures account emails for test assertions
type MockMailer struct {
	mu   sync.Mutex
	sent []SentEmail
}

func (m *MockMailer) record(kind, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{Kind: kind, To: to, Code: code})
	return nil
}

func (m *MockMailer) SendVerificationCode(_ context.Context, to, code string, _ time.Time) error {
	return m.record("verification", to, code)
}

func (m *MockMailer) SendResetCode(_ context.Context, to, code string, _ time.Time) error {
	return m.record("reset", to, code)
}

func (m *MockMailer) SendPasswordChanged(_ context.Context, to string) error {
	return m.record("password_changed", to, "")
}

// LastEmail returns the most recent email of kind sent to addr.
func (m *MockMailer) LastEmail(kind, to string) *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind && m.sent[i].To == to {
			e := m.sent[i]
			return &e
		}
	}
	return nil
}

type allowAllBots struct{}

func (allowAllBots) Verify(context.Context, string, string) error { return nil }

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Repo   *repositories.UserRepository
	Mailer *MockMailer
	Tokens *auth.TokenManager

	client *http.Client
	csrf   string
}

// NewTestServer wires the production router over a real database with a
// captured mailer and a permissive bot check.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLogger := pkglogger.NewAuditLogger(logger)

	repo := repositories.NewUserRepository(db)
	mailer := &MockMailer{}

	tokens, err := auth.NewTokenManager(testJWTSecret, time.Hour)
	if err != nil {
		return nil, err
	}
	csrfGuard := auth.NewCSRFGuard()
	ipConfig := &pkghttp.IPConfig{}

	authService, err := services.NewAuthService(repo, tokens, auth.NewOneTimeCodeManager(), mailer, allowAllBots{},
		nil, bcrypt.MinCost, logger, auditLogger)
	if err != nil {
		return nil, err
	}
	adminService := services.NewAdminService(repo, bcrypt.MinCost, logger, auditLogger)
	google := services.NewGoogleProvider("client-id", "client-secret", "http://localhost/api/auth/callback/google")
	oauthService := services.NewOAuthService(google, repo, tokens, logger, auditLogger)

	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, ipConfig, logger),
		Admin:  handlers.NewAdminHandler(adminService, logger),
		OAuth:  handlers.NewOAuthHandler(oauthService, google, "http://localhost:3000", ipConfig, logger),
		CSRF:   handlers.NewCSRFHandler(csrfGuard, auth.CookieConfig{}, logger),
		Health: handlers.Health(db, logger),
	}
	g := routes.Guards{
		Tokens:     tokens,
		CSRF:       csrfGuard,
		AdminLimit: middlewareCustom.RateLimitByIP(1000, pkghttp.ClientIPKey(ipConfig)),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, h, g, logger)
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &TestServer{
		Server: httptest.NewServer(r),
		DB:     db,
		Repo:   repo,
		Mailer: mailer,
		Tokens: tokens,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// csrfToken fetches a token once; the secret cookie stays in the client's jar.
func (ts *TestServer) csrfToken() (string, error) {
	if ts.csrf != "" {
		return ts.csrf, nil
	}
	resp, err := ts.client.Get(ts.Server.URL + "/api/csrf-token")
	if err != nil {
		return "", err
	}
	var body handlers.CSRFTokenResponse
	if err := ParseJSONResponse(resp, &body); err != nil {
		return "", err
	}
	ts.csrf = body.CSRFToken
	return ts.csrf, nil
}

// Request makes an HTTP request to the test server. State-changing requests
// carry a CSRF token.
func (ts *TestServer) Request(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if method != http.MethodGet {
		token, err := ts.csrfToken()
		if err != nil {
			return nil, fmt.Errorf("fetch csrf token: %w", err)
		}
		req.Header.Set(auth.CSRFHeaderName, token)
	}

	return ts.client.Do(req)
}

// RequestWithAuth makes a request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, token string, body any) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
