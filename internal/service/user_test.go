package service

import (
	"context"
	"errors"
	"testing"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSyncCreatesOnceWithUserRole(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewUserService(store, NewLocalLocker())

	u, created, err := svc.Sync(ctx, "u1", SyncUserRequest{Email: "a@example.com", DisplayName: "Ayse"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleUser, u.Role)

	require.NoError(t, svc.UpdateRole(ctx, "u1", models.RoleAdmin))

	u, created, err = svc.Sync(ctx, "u1", SyncUserRequest{DisplayName: "Ayse K."})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, "Ayse K.", u.DisplayName)
	assert.Equal(t, "a@example.com", u.Email)
}

func TestRequireAdmin(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedUser(t, store, models.User{ID: "admin", Role: models.RoleAdmin})
	seedUser(t, store, models.User{ID: "plain", Role: models.RoleUser})
	svc := NewUserService(store, NewLocalLocker())

	assert.NoError(t, svc.RequireAdmin(ctx, "admin"))
	assert.True(t, errors.Is(svc.RequireAdmin(ctx, "plain"), ErrForbidden))
	assert.True(t, errors.Is(svc.RequireAdmin(ctx, "ghost"), ErrForbidden))
}

func TestUpdateRole(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedUser(t, store, models.User{ID: "u1", Role: models.RoleUser})
	svc := NewUserService(store, NewLocalLocker())

	assert.True(t, errors.Is(svc.UpdateRole(ctx, "u1", "superuser"), ErrInvalidInput))
	assert.True(t, errors.Is(svc.UpdateRole(ctx, "ghost", models.RoleAdmin), ErrNotFound))

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, models.RoleUser, users[0].Role)
}
