package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/BradenHooton/authgate/internal/models"
	pkgauth "github.com/BradenHooton/authgate/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAdminFixture() (*AdminService, *memoryStore) {
	store := newMemoryStore()
	return NewAdminService(store, bcrypt.MinCost, newTestLogger(), newTestAuditLogger()), store
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, DefaultPageSize},
		{-3, 5, 1, 5},
		{2, 100, 2, 100},
		{4, 500, 4, MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.page, tt.size), func(t *testing.T) {
			page, size := NormalizePage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}

func TestAdminService_ListUsers(t *testing.T) {
	svc, store := newAdminFixture()
	for i := 0; i < 12; i++ {
		store.seed(fmt.Sprintf("user%02d", i), fmt.Sprintf("user%02d@example.com", i), true)
	}
	store.seed("Carol", "carol@corp.example", true)

	page, err := svc.ListUsers(context.Background(), "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(13), page.Total)
	assert.Len(t, page.Users, 3)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)

	page, err = svc.ListUsers(context.Background(), " CORP ", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "Carol", page.Users[0].Username)

	page, err = svc.ListUsers(context.Background(), "nothing-matches", 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Users)
	assert.Empty(t, page.Users)
}

func TestAdminService_UpdateUser(t *testing.T) {
	svc, store := newAdminFixture()
	ctx := context.Background()
	admin := store.seed("admin", "admin@example.com", true)
	bob := store.seed("bob", "bob@example.com", true)
	store.seed("carol", "carol@example.com", true)

	profile, err := svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: bob.ID, Username: "robert", Email: "Robert@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "robert", profile.Username)
	assert.Equal(t, "robert@example.com", profile.Email)

	_, err = svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: bob.ID, Username: "ADMIN", Email: "robert@example.com"})
	assert.ErrorIs(t, err, models.ErrReservedUsername)

	_, err = svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: bob.ID, Username: "carol", Email: "robert@example.com"})
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)

	_, err = svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: bob.ID, Username: "robert", Email: "carol@example.com"})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	// the reserved account may keep its name
	_, err = svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: admin.ID, Username: "admin", Email: "root@example.com"})
	assert.NoError(t, err)

	_, err = svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: bob.ID, Username: "robert"})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.UpdateUser(ctx, admin.ID, AdminUpdateInput{ID: "missing", Username: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestAdminService_DeleteUser(t *testing.T) {
	svc, store := newAdminFixture()
	ctx := context.Background()
	admin := store.seed("admin", "admin@example.com", true)
	bob := store.seed("bob", "bob@example.com", true)

	assert.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, admin.ID), models.ErrProtectedAccount)
	assert.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, ""), models.ErrBadRequest)

	require.NoError(t, svc.DeleteUser(ctx, admin.ID, bob.ID))
	_, err := store.FindByID(ctx, bob.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	assert.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, bob.ID), models.ErrUserNotFound)
}

func TestAdminService_EnsureAdmin(t *testing.T) {
	svc, store := newAdminFixture()
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.EnsureAdmin(ctx, "root@example.com", "weak")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	created, err = svc.EnsureAdmin(ctx, "Root@Example.com", testPassword)
	require.NoError(t, err)
	assert.True(t, created)

	admin, err := store.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, admin.EmailVerified)
	assert.Equal(t, "root@example.com", admin.Email)
	assert.NoError(t, pkgauth.ComparePassword(*admin.PasswordHash, testPassword))

	created, err = svc.EnsureAdmin(ctx, "other@example.com", testPassword)
	require.NoError(t, err)
	assert.False(t, created)
}
