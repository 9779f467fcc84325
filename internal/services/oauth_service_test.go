package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// MockIdentityProvider implements IdentityProvider for testing
type MockIdentityProvider struct {
	ExchangeFunc func(ctx context.Context, code string) (*GoogleIdentity, error)
}

func (m *MockIdentityProvider) Exchange(ctx context.Context, code string) (*GoogleIdentity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	return nil, models.ErrUpstream
}

func identityProvider(identity GoogleIdentity) *MockIdentityProvider {
	return &MockIdentityProvider{ExchangeFunc: func(ctx context.Context, code string) (*GoogleIdentity, error) {
		id := identity
		return &id, nil
	}}
}

func newOAuthFixture(identity GoogleIdentity) (*OAuthService, *memoryStore) {
	store := newMemoryStore()
	return NewOAuthService(identityProvider(identity), store, &MockTokenIssuer{}, newTestLogger(), newTestAuditLogger()), store
}

func TestOAuthService_CreatesAccount(t *testing.T) {
	svc, store := newOAuthFixture(GoogleIdentity{
		ID: "1234567890", Email: "Gina@Example.com", VerifiedEmail: true, Name: "Gina", Picture: "https://img/g.png",
	})

	result, err := svc.HandleCallback(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Equal(t, "Gina", result.User.Username)
	assert.Equal(t, models.LoginMethodGoogle, result.User.LoginMethod)
	assert.True(t, result.User.EmailVerified)
	assert.Equal(t, "https://img/g.png", result.User.Picture)

	stored, err := store.FindByEmail(context.Background(), "gina@example.com")
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordHash)
	require.NotNil(t, stored.GoogleID)
	assert.Equal(t, "1234567890", *stored.GoogleID)
}

func TestOAuthService_CreateFallsBackOnTakenOrReservedName(t *testing.T) {
	t.Run("taken", func(t *testing.T) {
		svc, store := newOAuthFixture(GoogleIdentity{ID: "g-000111222", Email: "new@example.com", VerifiedEmail: true, Name: "bob"})
		store.seed("bob", "bob@example.com", true)

		result, err := svc.HandleCallback(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "bob-111222", result.User.Username)
	})

	t.Run("reserved", func(t *testing.T) {
		svc, _ := newOAuthFixture(GoogleIdentity{ID: "g-999888777", Email: "new@example.com", VerifiedEmail: true, Name: "Admin"})

		result, err := svc.HandleCallback(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "Admin-888777", result.User.Username)
	})

	t.Run("fallback also taken", func(t *testing.T) {
		svc, store := newOAuthFixture(GoogleIdentity{ID: "g-000111222", Email: "new@example.com", VerifiedEmail: true, Name: "bob"})
		store.seed("bob", "bob@example.com", true)
		store.seed("bob-111222", "bob2@example.com", true)

		result, err := svc.HandleCallback(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "bob-g-000111222", result.User.Username)
	})

	t.Run("no display name", func(t *testing.T) {
		svc, _ := newOAuthFixture(GoogleIdentity{ID: "g-1", Email: "quiet@example.com", VerifiedEmail: true})

		result, err := svc.HandleCallback(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "quiet", result.User.Username)
	})
}

func TestOAuthService_LinksExistingAccount(t *testing.T) {
	svc, store := newOAuthFixture(GoogleIdentity{ID: "g-42", Email: "alice@example.com", VerifiedEmail: true, Name: "Alice Smith"})
	u := store.seed("alice", "alice@example.com", true)

	result, err := svc.HandleCallback(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Equal(t, u.ID, result.User.ID)
	assert.Equal(t, "Alice Smith", result.User.Username)
	assert.True(t, result.User.EmailVerified)
	assert.Equal(t, models.LoginMethodGoogle, result.User.LoginMethod)

	stored, _ := store.FindByID(context.Background(), u.ID)
	require.NotNil(t, stored.GoogleID)
	assert.Equal(t, "g-42", *stored.GoogleID)
	assert.NotNil(t, stored.PasswordHash, "password login keeps working after linking")
}

func TestOAuthService_LinkingUnverifiedAccountDropsPassword(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	// someone registers the address without owning the mailbox
	_, err := f.svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	before, err := f.store.FindByEmail(ctx, "new.user@example.com")
	require.NoError(t, err)
	require.NotNil(t, before.VerificationCode)

	oauth := NewOAuthService(
		identityProvider(GoogleIdentity{ID: "g-owner", Email: "new.user@example.com", VerifiedEmail: true}),
		f.store, &MockTokenIssuer{}, newTestLogger(), newTestAuditLogger(),
	)
	result, err := oauth.HandleCallback(ctx, "code", "")
	require.NoError(t, err)
	assert.Equal(t, before.ID, result.User.ID)
	assert.True(t, result.User.EmailVerified)

	stored, err := f.store.FindByID(ctx, before.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordHash)
	assert.Nil(t, stored.VerificationCode)
	assert.Nil(t, stored.VerificationCodeExpires)

	_, err = f.svc.Login(ctx, before.Username, testPassword, "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestOAuthService_NeverRenamesAdminOrCollides(t *testing.T) {
	t.Run("admin", func(t *testing.T) {
		svc, store := newOAuthFixture(GoogleIdentity{ID: "g-1", Email: "admin@example.com", VerifiedEmail: true, Name: "Root User"})
		store.seed("admin", "admin@example.com", true)

		result, err := svc.HandleCallback(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "admin", result.User.Username)
	})

	t.Run("collision", func(t *testing.T) {
		svc, store := newOAuthFixture(GoogleIdentity{ID: "g-2", Email: "alice@example.com", VerifiedEmail: true, Name: "carol"})
		store.seed("alice", "alice@example.com", true)
		store.seed("carol", "carol@example.com", true)

		result, err := svc.HandleCallback(context.Background(), "code", "")
		require.NoError(t, err)
		assert.Equal(t, "alice", result.User.Username)
	})
}

func TestOAuthService_Rejections(t *testing.T) {
	t.Run("unverified email", func(t *testing.T) {
		svc, store := newOAuthFixture(GoogleIdentity{ID: "g-1", Email: "x@example.com", VerifiedEmail: false, Name: "x"})

		_, err := svc.HandleCallback(context.Background(), "code", "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
		_, err = store.FindByEmail(context.Background(), "x@example.com")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})

	t.Run("different google id", func(t *testing.T) {
		svc, store := newOAuthFixture(GoogleIdentity{ID: "g-new", Email: "alice@example.com", VerifiedEmail: true})
		u := store.seed("alice", "alice@example.com", true)
		old := "g-old"
		_, err := store.UpdateFields(context.Background(), u.ID, models.UserUpdate{GoogleID: &old})
		require.NoError(t, err)

		_, err = svc.HandleCallback(context.Background(), "code", "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("provider failure", func(t *testing.T) {
		store := newMemoryStore()
		svc := NewOAuthService(&MockIdentityProvider{}, store, &MockTokenIssuer{}, newTestLogger(), newTestAuditLogger())

		_, err := svc.HandleCallback(context.Background(), "code", "")
		assert.ErrorIs(t, err, models.ErrUpstream)
	})
}

func newGoogleServer(t *testing.T, userinfoStatus int, identity GoogleIdentity) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-123", r.Header.Get("Authorization"))
		w.WriteHeader(userinfoStatus)
		_ = json.NewEncoder(w).Encode(identity)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testGoogleProvider(srv *httptest.Server) *GoogleProvider {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost/api/auth/callback/google")
	p.oauth.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	p.userInfoURL = srv.URL + "/userinfo"
	p.httpClient = srv.Client()
	return p
}

func TestGoogleProvider_Exchange(t *testing.T) {
	want := GoogleIdentity{ID: "g-1", Email: "gina@example.com", VerifiedEmail: true, Name: "Gina"}
	srv := newGoogleServer(t, http.StatusOK, want)

	got, err := testGoogleProvider(srv).Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestGoogleProvider_ExchangeFailures(t *testing.T) {
	srv := newGoogleServer(t, http.StatusUnauthorized, GoogleIdentity{})

	_, err := testGoogleProvider(srv).Exchange(context.Background(), "bad-code")
	assert.ErrorIs(t, err, models.ErrUpstream)

	_, err = testGoogleProvider(srv).Exchange(context.Background(), "good-code")
	assert.ErrorIs(t, err, models.ErrUpstream)

	unconfigured := NewGoogleProvider("client-id", "", "")
	_, err = unconfigured.Exchange(context.Background(), "good-code")
	assert.ErrorIs(t, err, models.ErrServerMisconfigured)
}

func TestGoogleProvider_PublicConfig(t *testing.T) {
	cfg := NewGoogleProvider("client-id", "secret", "https://app.example/cb").PublicConfig()
	assert.Equal(t, GoogleConfig{ClientID: "client-id", RedirectURI: "https://app.example/cb", IsConfigured: true}, cfg)
	assert.False(t, NewGoogleProvider("", "", "").PublicConfig().IsConfigured)
}
