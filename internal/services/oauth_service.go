package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/authgate/internal/models"
	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleIdentity is the subset of the Google user-info response we use.
type GoogleIdentity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// IdentityProvider turns an authorization code into a verified identity.
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (*GoogleIdentity, error)
}

// GoogleConfig is the public part of the OAuth client configuration.
type GoogleConfig struct {
	ClientID     string `json:"googleClientId"`
	RedirectURI  string `json:"googleRedirectUri"`
	IsConfigured bool   `json:"isConfigured"`
}

// GoogleProvider exchanges authorization codes with Google.
type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func NewGoogleProvider(clientID, clientSecret, redirectURI string) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// PublicConfig returns what the browser needs to start the OAuth flow.
func (p *GoogleProvider) PublicConfig() GoogleConfig {
	return GoogleConfig{
		ClientID:     p.oauth.ClientID,
		RedirectURI:  p.oauth.RedirectURL,
		IsConfigured: p.oauth.ClientID != "",
	}
}

// Exchange trades code for a token and fetches the user profile with it.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleIdentity, error) {
	if p.oauth.ClientID == "" || p.oauth.ClientSecret == "" {
		return nil, fmt.Errorf("google oauth client: %w", models.ErrServerMisconfigured)
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: google token exchange: %v", models.ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: google userinfo: %v", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: google userinfo status %d", models.ErrUpstream, resp.StatusCode)
	}

	var identity GoogleIdentity
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&identity); err != nil {
		return nil, fmt.Errorf("%w: decode google userinfo: %v", models.ErrUpstream, err)
	}
	return &identity, nil
}

var (
	errUnverifiedGoogleEmail = models.NewFlowError(models.ErrUnauthorized, "Google account email is not verified")
	errGoogleIDMismatch      = models.NewFlowError(models.ErrUnauthorized, "This email is linked to a different Google account")
)

// OAuthService creates or links accounts from Google identities.
type OAuthService struct {
	provider    IdentityProvider
	store       UserStore
	tokens      TokenIssuer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewOAuthService(provider IdentityProvider, store UserStore, tokens TokenIssuer, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *OAuthService {
	return &OAuthService{
		provider:    provider,
		store:       store,
		tokens:      tokens,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// HandleCallback completes a Google sign-in and returns a session for the
// matching account, creating or linking it first when needed.
func (s *OAuthService) HandleCallback(ctx context.Context, code, clientIP string) (*LoginResult, error) {
	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(identity.Email) == "" || strings.TrimSpace(identity.ID) == "" || !identity.VerifiedEmail {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventGoogleLogin,
			Email:         identity.Email,
			IPAddress:     clientIP,
			FailureReason: "unverified_email",
		})
		return nil, errUnverifiedGoogleEmail
	}

	email := models.NormalizeEmail(identity.Email)
	account, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		account, err = s.createFromIdentity(ctx, email, identity)
	case err == nil:
		account, err = s.mergeIdentity(ctx, account, identity)
	}
	if err != nil {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventGoogleLogin,
			Email:         email,
			IPAddress:     clientIP,
			FailureReason: err.Error(),
		})
		return nil, err
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventGoogleLogin,
		UserID:    account.ID,
		Email:     account.Email,
		IPAddress: clientIP,
		Success:   true,
	})
	return &LoginResult{Token: token, User: account.Profile()}, nil
}

func (s *OAuthService) createFromIdentity(ctx context.Context, email string, identity *GoogleIdentity) (*models.UserAccount, error) {
	username, err := s.chooseUsername(ctx, displayName(identity, email), identity.ID)
	if err != nil {
		return nil, err
	}

	googleID := identity.ID
	account := &models.UserAccount{
		Username:      username,
		Email:         email,
		LoginMethod:   models.LoginMethodGoogle,
		EmailVerified: true,
		GoogleID:      &googleID,
	}
	if identity.Picture != "" {
		picture := identity.Picture
		account.Picture = &picture
	}

	created, err := s.store.Create(ctx, account)
	if errors.Is(err, models.ErrDuplicateUsername) {
		// the name was taken after the availability check
		if account.Username, err = s.chooseUsername(ctx, displayName(identity, email), identity.ID); err != nil {
			return nil, err
		}
		created, err = s.store.Create(ctx, account)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("account created from google sign-in", slog.String("user_id", created.ID))
	return created, nil
}

// mergeIdentity links an existing account to the Google id or syncs its profile.
// Linking an unverified account drops its password and pending verification code.
func (s *OAuthService) mergeIdentity(ctx context.Context, account *models.UserAccount, identity *GoogleIdentity) (*models.UserAccount, error) {
	if account.GoogleID != nil && *account.GoogleID != identity.ID {
		return nil, errGoogleIDMismatch
	}

	var upd models.UserUpdate
	linking := account.GoogleID == nil
	if linking {
		googleID := identity.ID
		method := models.LoginMethodGoogle
		verified := true
		upd.GoogleID = &googleID
		upd.LoginMethod = &method
		upd.EmailVerified = &verified
		if !account.EmailVerified {
			// the existing password was never tied to a confirmed mailbox
			upd.ClearPasswordHash = true
			upd.ClearVerificationCode = true
		}
	}
	if identity.Picture != "" && (account.Picture == nil || *account.Picture != identity.Picture) {
		picture := identity.Picture
		upd.Picture = &picture
	}
	if name, ok := s.syncableName(ctx, account, identity.Name); ok {
		upd.Username = &name
	}

	if upd.IsEmpty() {
		return account, nil
	}

	updated, err := s.store.UpdateFields(ctx, account.ID, upd)
	if upd.Username != nil && (errors.Is(err, models.ErrDuplicateUsername) || errors.Is(err, models.ErrReservedUsername)) {
		// someone took the name between the check and the update
		upd.Username = nil
		if upd.IsEmpty() {
			return account, nil
		}
		updated, err = s.store.UpdateFields(ctx, account.ID, upd)
	}
	if err != nil {
		return nil, err
	}

	if linking {
		s.auditLogger.LogAccountAction(ctx, pkglogger.EventAccountLinked, updated.ID, updated.ID, map[string]string{
			"provider": "google",
		})
	}
	return updated, nil
}

// syncableName reports whether the account can take name as its username.
func (s *OAuthService) syncableName(ctx context.Context, account *models.UserAccount, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == account.Username || account.IsReserved() || models.IsReservedUsername(name) {
		return "", false
	}
	if _, err := s.store.FindByUsername(ctx, name); !errors.Is(err, models.ErrUserNotFound) {
		return "", false
	}
	return name, true
}

// chooseUsername returns the first free name among base, base with the last
// six characters of the google id, and base with the whole id.
func (s *OAuthService) chooseUsername(ctx context.Context, base, googleID string) (string, error) {
	short := googleID
	if len(short) > 6 {
		short = short[len(short)-6:]
	}
	candidates := []string{base, base + "-" + short}
	if short != googleID {
		candidates = append(candidates, base+"-"+googleID)
	}

	for _, name := range candidates {
		if models.IsReservedUsername(name) {
			continue
		}
		_, err := s.store.FindByUsername(ctx, name)
		if errors.Is(err, models.ErrUserNotFound) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", models.ErrDuplicateUsername
}

func displayName(identity *GoogleIdentity, email string) string {
	if name := strings.TrimSpace(identity.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
