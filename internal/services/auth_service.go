package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkgauth "github.com/BradenHooton/authgate/pkg/auth"
	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// User-facing messages for successful flows.
const (
	MsgRegistered         = "Registered successfully! Please check your email for the verification code."
	MsgEmailVerified      = "Email verified successfully!"
	MsgLoginSuccessful    = "Login successful!"
	MsgResetRequested     = "If the email exists, a reset code will be sent."
	MsgResetResent        = "If the email exists, a new reset code will be sent."
	MsgCodeValid          = "Code is valid."
	MsgPasswordChanged    = "Password changed successfully!"
	MsgVerificationResent = "Verification code resent. Please check your email."
)

// dummyPassword is hashed once so unknown-user logins still pay for a bcrypt compare.
const dummyPassword = "timing-equaliser-Passw0rd!"

// UserStore is the persistence contract used by the account flows.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.UserAccount, error)
	FindByUsername(ctx context.Context, username string) (*models.UserAccount, error)
	FindByEmail(ctx context.Context, email string) (*models.UserAccount, error)
	Create(ctx context.Context, u *models.UserAccount) (*models.UserAccount, error)
	UpdateFields(ctx context.Context, id string, upd models.UserUpdate) (*models.UserAccount, error)
	SetCode(ctx context.Context, id string, code *models.OneTimeCode) error
	ConsumeCode(ctx context.Context, id string, kind models.CodeKind, code string, now time.Time, effect models.UserUpdate) (*models.UserAccount, error)
}

// TokenIssuer signs session tokens for an account.
type TokenIssuer interface {
	Issue(account *models.UserAccount) (string, error)
}

// CodeIssuer issues and checks one-time codes.
type CodeIssuer interface {
	Issue(kind models.CodeKind) (*models.OneTimeCode, error)
	Validate(account *models.UserAccount, kind models.CodeKind, supplied string, now time.Time) error
}

// AccountNotifier sends the account lifecycle emails.
type AccountNotifier interface {
	SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error
	SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error
	SendPasswordChanged(ctx context.Context, to string) error
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Email          string
	Username       string
	Password       string
	RecaptchaToken string
	ClientIP       string
}

// ResetPasswordInput is the payload of a password reset confirmation.
type ResetPasswordInput struct {
	Email           string
	Code            string
	NewPassword     string
	ConfirmPassword string
	ClientIP        string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token string
	User  *models.UserProfile
}

// AuthService drives the credential lifecycle: registration, email
// verification, login and password reset.
type AuthService struct {
	store       UserStore
	tokens      TokenIssuer
	codes       CodeIssuer
	mailer      AccountNotifier
	bots        BotChecker
	timing      *auth.TimingDelay
	bcryptCost  int
	dummyHash   string
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewAuthService(
	store UserStore,
	tokens TokenIssuer,
	codes CodeIssuer,
	mailer AccountNotifier,
	bots BotChecker,
	timing *auth.TimingDelay,
	bcryptCost int,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) (*AuthService, error) {
	dummyHash, err := pkgauth.HashPassword(dummyPassword, bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &AuthService{
		store:       store,
		tokens:      tokens,
		codes:       codes,
		mailer:      mailer,
		bots:        bots,
		timing:      timing,
		bcryptCost:  bcryptCost,
		dummyHash:   dummyHash,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}, nil
}

func required(message string) *models.FlowError {
	return models.NewFlowError(models.ErrBadRequest, message)
}

const (
	maxEmailLength    = 254
	maxUsernameLength = 64
)

var fieldRules = validator.New()

// checkRegistrationFields rejects malformed addresses and oversized names.
func checkRegistrationFields(email, username string) error {
	if err := fieldRules.Var(email, fmt.Sprintf("max=%d,email", maxEmailLength)); err != nil {
		return models.NewFlowError(models.ErrBadRequest, "Invalid email address")
	}
	if len(username) > maxUsernameLength {
		return models.NewFlowError(models.ErrBadRequest, fmt.Sprintf("Username must be at most %d characters", maxUsernameLength))
	}
	return nil
}

// checkPasswordPolicy returns a FlowError listing every violated rule.
func checkPasswordPolicy(password string) error {
	if violations := pkgauth.ValidatePassword(password); len(violations) > 0 {
		return models.NewFlowError(models.ErrBadRequest, strings.Join(violations, ", "), violations...)
	}
	if len(password) > pkgauth.MaxPasswordBytes {
		return models.NewFlowError(models.ErrBadRequest, "Password must be at most 72 bytes")
	}
	return nil
}

func (s *AuthService) hash(password string) (string, error) {
	hashed, err := pkgauth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hashed, nil
}

// Register creates an unverified account and mails its verification code.
// If the mail fails the account is kept and the caller gets an upstream
// error; the user can ask for a new code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.UserProfile, error) {
	if err := s.bots.Verify(ctx, in.RecaptchaToken, in.ClientIP); err != nil {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventRegister,
			IPAddress:     in.ClientIP,
			FailureReason: "bot_check",
		})
		return nil, err
	}

	email := models.NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, models.ErrMissingFields
	}
	if err := checkRegistrationFields(email, username); err != nil {
		return nil, err
	}
	if models.IsReservedUsername(username) {
		return nil, models.ErrReservedUsername
	}
	if err := checkPasswordPolicy(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, models.ErrDuplicateEmail
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return nil, models.ErrDuplicateUsername
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	code, err := s.codes.Issue(models.CodeKindVerification)
	if err != nil {
		return nil, err
	}

	account, err := s.store.Create(ctx, &models.UserAccount{
		Username:                username,
		Email:                   email,
		PasswordHash:            &hashed,
		LoginMethod:             models.LoginMethodUsername,
		EmailVerified:           false,
		VerificationCode:        &code.Code,
		VerificationCodeExpires: &code.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		UserID:    account.ID,
		Email:     account.Email,
		IPAddress: in.ClientIP,
		Success:   true,
	})

	if err := s.mailer.SendVerificationCode(ctx, account.Email, code.Code, code.ExpiresAt); err != nil {
		s.logger.Error("verification email failed after registration",
			slog.String("user_id", account.ID),
			slog.Any("error", err))
		return nil, models.NewFlowError(models.ErrUpstream,
			"Registered, but the verification email could not be sent. Please request a new code.")
	}

	return account.Profile(), nil
}

// VerifyEmail consumes the pending verification code and marks the email verified.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*models.UserProfile, error) {
	email = models.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, required("Email and code are required.")
	}

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.EmailVerified {
		return nil, models.ErrAlreadyVerified
	}

	now := s.now()
	if err := s.codes.Validate(account, models.CodeKindVerification, code, now); err != nil {
		return nil, err
	}

	verified := true
	updated, err := s.store.ConsumeCode(ctx, account.ID, models.CodeKindVerification, code, now,
		models.UserUpdate{EmailVerified: &verified})
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventEmailVerified,
		UserID:    updated.ID,
		Email:     updated.Email,
		Success:   true,
	})
	return updated.Profile(), nil
}

// ResendVerificationCode replaces the pending verification code of an unverified account.
func (s *AuthService) ResendVerificationCode(ctx context.Context, email string) error {
	if email = models.NormalizeEmail(email); email == "" {
		return required("Email is required.")
	}

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.EmailVerified {
		return models.ErrAlreadyVerified
	}

	code, err := s.issueAndStore(ctx, account, models.CodeKindVerification)
	if err != nil {
		return err
	}
	return s.mailer.SendVerificationCode(ctx, account.Email, code.Code, code.ExpiresAt)
}

// Login checks username and password. Every credential failure returns the
// same error and takes about the same time.
func (s *AuthService) Login(ctx context.Context, username, password, clientIP string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, required("Username and password are required.")
	}

	start := time.Now()
	fail := func(reason string) (*LoginResult, error) {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLogin,
			IPAddress:     clientIP,
			FailureReason: reason,
		})
		s.timing.WaitFrom(start)
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			return nil, err
		}
		_ = pkgauth.ComparePassword(s.dummyHash, password)
		return fail("unknown_user")
	}

	if account.PasswordHash == nil || *account.PasswordHash == "" {
		_ = pkgauth.ComparePassword(s.dummyHash, password)
		return fail("no_password")
	}
	if err := pkgauth.ComparePassword(*account.PasswordHash, password); err != nil {
		return fail("wrong_password")
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogin,
		UserID:    account.ID,
		Email:     account.Email,
		IPAddress: clientIP,
		Success:   true,
	})
	return &LoginResult{Token: token, User: account.Profile()}, nil
}

// RequestPasswordReset issues a reset code when the email is known. The
// outcome is never revealed to the caller.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if email = models.NormalizeEmail(email); email == "" {
		return required("Email is required.")
	}
	return s.sendResetCode(ctx, email)
}

// ResendResetCode replaces any pending reset code. Same disclosure rules as RequestPasswordReset.
func (s *AuthService) ResendResetCode(ctx context.Context, email string) error {
	return s.RequestPasswordReset(ctx, email)
}

func (s *AuthService) sendResetCode(ctx context.Context, email string) error {
	account, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	code, err := s.issueAndStore(ctx, account, models.CodeKindReset)
	if err != nil {
		return err
	}
	if err := s.mailer.SendResetCode(ctx, account.Email, code.Code, code.ExpiresAt); err != nil {
		// a failure here would reveal that the account exists
		s.logger.Error("reset email not sent",
			slog.String("user_id", account.ID),
			slog.Any("error", err))
	}
	return nil
}

// CheckResetCode reports whether code is the account's valid pending reset code
// without consuming it.
func (s *AuthService) CheckResetCode(ctx context.Context, email, code string) error {
	email = models.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return required("Email and code are required.")
	}

	account, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return models.ErrNoPendingCode
	}
	if err != nil {
		return err
	}
	return s.codes.Validate(account, models.CodeKindReset, code, s.now())
}

// ResetPassword consumes a reset code and stores the new password hash.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	email := models.NormalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)
	if email == "" || code == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return required("All fields are required.")
	}
	if in.NewPassword != in.ConfirmPassword {
		return models.ErrPasswordMismatch
	}
	if err := checkPasswordPolicy(in.NewPassword); err != nil {
		return err
	}

	account, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return models.ErrNoPendingCode
	}
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.codes.Validate(account, models.CodeKindReset, code, now); err != nil {
		s.auditLogger.LogPasswordChange(ctx, account.ID, in.ClientIP, false)
		return err
	}

	hashed, err := s.hash(in.NewPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.ConsumeCode(ctx, account.ID, models.CodeKindReset, code, now,
		models.UserUpdate{PasswordHash: &hashed}); err != nil {
		return err
	}
	s.auditLogger.LogPasswordChange(ctx, account.ID, in.ClientIP, true)

	if err := s.mailer.SendPasswordChanged(ctx, account.Email); err != nil {
		s.logger.Warn("password changed email not sent",
			slog.String("user_id", account.ID),
			slog.Any("error", err))
	}
	return nil
}

// CurrentUser returns a fresh profile for the token subject.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	account, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return account.Profile(), nil
}

func (s *AuthService) issueAndStore(ctx context.Context, account *models.UserAccount, kind models.CodeKind) (*models.OneTimeCode, error) {
	code, err := s.codes.Issue(kind)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCode(ctx, account.ID, code); err != nil {
		return nil, err
	}
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventCodeIssued,
		UserID:    account.ID,
		Email:     account.Email,
		Success:   true,
	})
	return code, nil
}
