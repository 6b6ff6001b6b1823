package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"go.uber.org/zap"
)

// SyncUserRequest carries the profile fields reported at sign-in. Email is
// filled from the caller's credentials, never from the request body.
type SyncUserRequest struct {
	Email       string `json:"-"`
	DisplayName string `json:"displayName"`
}

// UserService manages user documents keyed by identity subject
type UserService struct {
	store  docstore.Store
	locker Locker
	now    func() time.Time
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store docstore.Store, locker Locker) *UserService {
	return &UserService{
		store:  store,
		locker: locker,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

func getUser(ctx context.Context, store docstore.Store, id string) (*models.User, error) {
	user, err := docstore.GetAs[models.User](ctx, store, models.CollectionUsers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return user, nil
}

// Sync creates the user document on first sign-in with role "user". Later
// calls refresh the profile fields and never touch the role.
func (s *UserService) Sync(ctx context.Context, userID string, req SyncUserRequest) (*models.User, bool, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Sync")
	defer span.End()

	var (
		result  *models.User
		created bool
	)
	err := s.locker.WithLock(ctx, userLockKey(userID), func(ctx context.Context) error {
		user, err := getUser(ctx, s.store, userID)
		if errors.Is(err, ErrNotFound) {
			user = &models.User{
				ID:          userID,
				Email:       strings.TrimSpace(req.Email),
				DisplayName: strings.TrimSpace(req.DisplayName),
				Role:        models.RoleUser,
				Addresses:   []models.Address{},
				CreatedAt:   s.now(),
			}
			if err := s.store.Set(ctx, models.CollectionUsers, userID, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			result, created = user, true
			return nil
		}
		if err != nil {
			return err
		}

		partial := map[string]any{}
		if e := strings.TrimSpace(req.Email); e != "" && e != user.Email {
			user.Email = e
			partial["email"] = e
		}
		if n := strings.TrimSpace(req.DisplayName); n != "" && n != user.DisplayName {
			user.DisplayName = n
			partial["displayName"] = n
		}
		if len(partial) > 0 {
			now := s.now()
			user.UpdatedAt = &now
			partial["updatedAt"] = now
			if err := s.store.Update(ctx, models.CollectionUsers, userID, partial); err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
		}
		result = user
		return nil
	})
	if err != nil {
		return nil, false, util.RecordError(span, err)
	}
	if created {
		s.logger.Info("User created", zap.String("user_id", userID))
	}
	return result, created, nil
}

// Get returns a user document
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	return getUser(ctx, s.store, userID)
}

// RequireAdmin fails with ErrForbidden unless the user has the admin role.
// A missing user document is also forbidden.
func (s *UserService) RequireAdmin(ctx context.Context, userID string) error {
	user, err := getUser(ctx, s.store, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return err
	}
	if user.Role != models.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// ListUsers returns every user, newest first
func (s *UserService) ListUsers(ctx context.Context) ([]models.AdminUserView, error) {
	users, err := docstore.ListAs[models.User](ctx, s.store, models.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})

	views := make([]models.AdminUserView, 0, len(users))
	for _, u := range users {
		role := u.Role
		if role == "" {
			role = models.RoleUser
		}
		views = append(views, models.AdminUserView{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			Role:        role,
			CreatedAt:   u.CreatedAt,
		})
	}
	return views, nil
}

// UpdateRole sets a user's role to "user" or "admin"
func (s *UserService) UpdateRole(ctx context.Context, userID, role string) error {
	if !models.ValidRole(role) {
		return invalidf("invalid role %q", role)
	}
	err := s.store.Update(ctx, models.CollectionUsers, userID, map[string]any{
		"role":      role,
		"updatedAt": s.now(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound("user", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	s.logger.Info("User role updated", zap.String("user_id", userID), zap.String("role", role))
	return nil
}
