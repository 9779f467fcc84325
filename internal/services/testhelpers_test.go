package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkgauth "github.com/BradenHooton/authgate/pkg/auth"
	pkglogger "github.com/BradenHooton/authgate/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Str0ng!Pass"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// memoryStore is an in-memory UserStore and AdminStore with the same
// uniqueness and reserved-name rules as the Postgres repository.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]*models.UserAccount
	order []string
	seq   int

	FindErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]*models.UserAccount)}
}

func (m *memoryStore) copyOf(u *models.UserAccount) *models.UserAccount {
	c := *u
	return &c
}

func (m *memoryStore) find(match func(*models.UserAccount) bool) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for _, id := range m.order {
		if u := m.users[id]; match(u) {
			return m.copyOf(u), nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *memoryStore) FindByID(ctx context.Context, id string) (*models.UserAccount, error) {
	return m.find(func(u *models.UserAccount) bool { return u.ID == id })
}

func (m *memoryStore) FindByUsername(ctx context.Context, username string) (*models.UserAccount, error) {
	return m.find(func(u *models.UserAccount) bool { return u.Username == username })
}

func (m *memoryStore) FindByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	email = models.NormalizeEmail(email)
	return m.find(func(u *models.UserAccount) bool { return u.Email == email })
}

// conflict must be called with mu held.
func (m *memoryStore) conflict(selfID, email, username string) error {
	for _, u := range m.users {
		if u.ID == selfID {
			continue
		}
		if email != "" && u.Email == email {
			return models.ErrDuplicateEmail
		}
		if username != "" && u.Username == username {
			return models.ErrDuplicateUsername
		}
		if username != "" && models.IsReservedUsername(username) && u.IsReserved() {
			return models.ErrReservedUsername
		}
	}
	return nil
}

func (m *memoryStore) Create(ctx context.Context, u *models.UserAccount) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = models.NormalizeEmail(u.Email)
	if err := m.conflict("", u.Email, u.Username); err != nil {
		return nil, err
	}
	m.seq++
	c := m.copyOf(u)
	c.ID = fmt.Sprintf("user-%d", m.seq)
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.users[c.ID] = c
	m.order = append(m.order, c.ID)
	return m.copyOf(c), nil
}

func (m *memoryStore) UpdateFields(ctx context.Context, id string, upd models.UserUpdate) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	var email, username string
	if upd.Email != nil {
		email = models.NormalizeEmail(*upd.Email)
	}
	if upd.Username != nil {
		username = *upd.Username
		if models.IsReservedUsername(username) && !u.IsReserved() {
			return nil, models.ErrReservedUsername
		}
	}
	if err := m.conflict(id, email, username); err != nil {
		return nil, err
	}
	if upd.Username != nil {
		u.Username = username
	}
	if upd.Email != nil {
		u.Email = email
	}
	if upd.ClearPasswordHash {
		u.PasswordHash = nil
	} else if upd.PasswordHash != nil {
		u.PasswordHash = upd.PasswordHash
	}
	if upd.LoginMethod != nil {
		u.LoginMethod = *upd.LoginMethod
	}
	if upd.EmailVerified != nil {
		u.EmailVerified = *upd.EmailVerified
	}
	if upd.GoogleID != nil {
		u.GoogleID = upd.GoogleID
	}
	if upd.Picture != nil {
		u.Picture = upd.Picture
	}
	if upd.ClearVerificationCode {
		u.VerificationCode, u.VerificationCodeExpires = nil, nil
	}
	u.UpdatedAt = time.Now().UTC()
	return m.copyOf(u), nil
}

func (m *memoryStore) SetCode(ctx context.Context, id string, code *models.OneTimeCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	c, exp := code.Code, code.ExpiresAt
	switch code.Kind {
	case models.CodeKindVerification:
		u.VerificationCode, u.VerificationCodeExpires = &c, &exp
	case models.CodeKindReset:
		u.ResetCode, u.ResetCodeExpires = &c, &exp
	}
	return nil
}

func (m *memoryStore) ConsumeCode(ctx context.Context, id string, kind models.CodeKind, code string, now time.Time, effect models.UserUpdate) (*models.UserAccount, error) {
	m.mu.Lock()
	u, ok := m.users[id]
	if !ok {
		m.mu.Unlock()
		return nil, models.ErrNoPendingCode
	}
	stored, exp := u.PendingCode(kind)
	if stored == nil || exp == nil || *stored != code || now.After(*exp) {
		m.mu.Unlock()
		return nil, models.ErrNoPendingCode
	}
	switch kind {
	case models.CodeKindVerification:
		u.VerificationCode, u.VerificationCodeExpires = nil, nil
	case models.CodeKindReset:
		u.ResetCode, u.ResetCodeExpires = nil, nil
	}
	m.mu.Unlock()
	return m.UpdateFields(ctx, id, effect)
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	if u.IsReserved() {
		return models.ErrProtectedAccount
	}
	delete(m.users, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memoryStore) Search(ctx context.Context, filter models.UserFilter, page, pageSize int) ([]*models.UserSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(filter.Search)
	var matched []*models.UserSummary
	for _, id := range m.order {
		u := m.users[id]
		if needle != "" && !strings.Contains(strings.ToLower(u.Username), needle) && !strings.Contains(u.Email, needle) {
			continue
		}
		matched = append(matched, &models.UserSummary{
			ID:            u.ID,
			Username:      u.Username,
			Email:         u.Email,
			LoginMethod:   u.LoginMethod,
			EmailVerified: u.EmailVerified,
			CreatedAt:     u.CreatedAt,
			UpdatedAt:     u.UpdatedAt,
		})
	}
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []*models.UserSummary{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// seed stores an account with a hashed testPassword.
func (m *memoryStore) seed(username, email string, verified bool) *models.UserAccount {
	hash, err := pkgauth.HashPassword(testPassword, bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u, err := m.Create(context.Background(), &models.UserAccount{
		Username:      username,
		Email:         email,
		PasswordHash:  &hash,
		LoginMethod:   models.LoginMethodUsername,
		EmailVerified: verified,
	})
	if err != nil {
		panic(err)
	}
	return u
}

type sentMail struct {
	Kind string
	To   string
	Code string
}

// MockNotifier records outgoing account emails.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentMail
	Err  error
}

func (m *MockNotifier) record(kind, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, sentMail{Kind: kind, To: to, Code: code})
	return nil
}

func (m *MockNotifier) SendVerificationCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	return m.record("verification", to, code)
}

func (m *MockNotifier) SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	return m.record("reset", to, code)
}

func (m *MockNotifier) SendPasswordChanged(ctx context.Context, to string) error {
	return m.record("changed", to, "")
}

func (m *MockNotifier) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return sentMail{}
	}
	return m.Sent[len(m.Sent)-1]
}

// MockBotChecker implements BotChecker for testing
type MockBotChecker struct {
	VerifyFunc func(ctx context.Context, token, remoteIP string) error
}

func (m *MockBotChecker) Verify(ctx context.Context, token, remoteIP string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token, remoteIP)
	}
	return nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	IssueFunc func(account *models.UserAccount) (string, error)
}

func (m *MockTokenIssuer) Issue(account *models.UserAccount) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(account)
	}
	return "token-" + account.ID, nil
}

type authFixture struct {
	svc    *AuthService
	store  *memoryStore
	mailer *MockNotifier
	bots   *MockBotChecker
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		store:  newMemoryStore(),
		mailer: &MockNotifier{},
		bots:   &MockBotChecker{},
	}
	svc, err := NewAuthService(
		f.store,
		&MockTokenIssuer{},
		auth.NewOneTimeCodeManager(),
		f.mailer,
		f.bots,
		nil, // no timing padding in tests
		bcrypt.MinCost,
		newTestLogger(),
		newTestAuditLogger(),
	)
	if err != nil {
		panic(err)
	}
	f.svc = svc
	return f
}
