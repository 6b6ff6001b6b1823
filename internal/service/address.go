package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"go.uber.org/zap"
)

// AddressInput is the writable part of an address
type AddressInput struct {
	Title       string `json:"title" binding:"required"`
	FullAddress string `json:"fullAddress" binding:"required"`
	City        string `json:"city" binding:"required"`
	District    string `json:"district"`
	PostalCode  string `json:"postalCode"`
	IsDefault   bool   `json:"isDefault"`
}

func (in AddressInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.FullAddress) == "" || strings.TrimSpace(in.City) == "" {
		return invalidf("title, fullAddress and city are required")
	}
	return nil
}

// AddressService manages the address list embedded in user documents.
// Every mutation runs under the owning user's lock so that at most one
// address stays default.
type AddressService struct {
	store  docstore.Store
	locker Locker
	now    func() time.Time
	logger *zap.Logger
}

// NewAddressService creates a new address service
func NewAddressService(store docstore.Store, locker Locker) *AddressService {
	return &AddressService{
		store:  store,
		locker: locker,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// sortDefaultFirst moves default addresses to the front, keeping the rest in
// their stored order.
func sortDefaultFirst(addrs []models.Address) {
	sort.SliceStable(addrs, func(i, j int) bool {
		return addrs[i].IsDefault && !addrs[j].IsDefault
	})
}

// clearDefaults unsets isDefault on every address except keepID.
func clearDefaults(addrs []models.Address, keepID string) {
	for i := range addrs {
		if addrs[i].ID != keepID {
			addrs[i].IsDefault = false
		}
	}
}

// newAddressID derives an id from the clock, bumping it until it is unique
// within the list.
func newAddressID(now time.Time, addrs []models.Address) string {
	n := now.UnixMilli()
	for {
		id := strconv.FormatInt(n, 10)
		taken := false
		for _, a := range addrs {
			if a.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		n++
	}
}

// List returns the user's addresses with defaults first
func (s *AddressService) List(ctx context.Context, userID string) ([]models.Address, error) {
	user, err := getUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	addrs := user.Addresses
	if addrs == nil {
		addrs = []models.Address{}
	}
	sortDefaultFirst(addrs)
	return addrs, nil
}

// mutate runs fn over the user's address list under the user lock and
// persists the result.
func (s *AddressService) mutate(ctx context.Context, userID string, fn func([]models.Address) ([]models.Address, error)) error {
	return s.locker.WithLock(ctx, userLockKey(userID), func(ctx context.Context) error {
		user, err := getUser(ctx, s.store, userID)
		if err != nil {
			return err
		}
		addrs, err := fn(user.Addresses)
		if err != nil {
			return err
		}
		if err := s.store.Update(ctx, models.CollectionUsers, userID, map[string]any{
			"addresses": addrs,
			"updatedAt": s.now(),
		}); err != nil {
			return fmt.Errorf("failed to save addresses: %w", err)
		}
		return nil
	})
}

// Add appends an address. A new default address clears the previous one.
func (s *AddressService) Add(ctx context.Context, userID string, in AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.Add")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	var created models.Address
	err := s.mutate(ctx, userID, func(addrs []models.Address) ([]models.Address, error) {
		now := s.now()
		created = models.Address{
			ID:          newAddressID(now, addrs),
			Title:       in.Title,
			FullAddress: in.FullAddress,
			City:        in.City,
			District:    in.District,
			PostalCode:  in.PostalCode,
			IsDefault:   in.IsDefault,
			CreatedAt:   now,
		}
		if created.IsDefault {
			clearDefaults(addrs, "")
		}
		return append(addrs, created), nil
	})
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return &created, nil
}

func applyAddressInput(addrs []models.Address, addressID string, in AddressInput, now time.Time) (*models.Address, bool) {
	for i := range addrs {
		if addrs[i].ID != addressID {
			continue
		}
		if in.IsDefault {
			clearDefaults(addrs, addressID)
		}
		addrs[i].Title = in.Title
		addrs[i].FullAddress = in.FullAddress
		addrs[i].City = in.City
		addrs[i].District = in.District
		addrs[i].PostalCode = in.PostalCode
		addrs[i].IsDefault = in.IsDefault
		addrs[i].UpdatedAt = &now
		updated := addrs[i]
		return &updated, true
	}
	return nil, false
}

// Update replaces the writable fields of one address
func (s *AddressService) Update(ctx context.Context, userID, addressID string, in AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.Update")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated *models.Address
	err := s.mutate(ctx, userID, func(addrs []models.Address) ([]models.Address, error) {
		a, ok := applyAddressInput(addrs, addressID, in, s.now())
		if !ok {
			return nil, notFound("address", addressID)
		}
		updated = a
		return addrs, nil
	})
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return updated, nil
}

// Delete removes one address
func (s *AddressService) Delete(ctx context.Context, userID, addressID string) error {
	return s.mutate(ctx, userID, func(addrs []models.Address) ([]models.Address, error) {
		kept := make([]models.Address, 0, len(addrs))
		for _, a := range addrs {
			if a.ID != addressID {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(addrs) {
			return nil, notFound("address", addressID)
		}
		return kept, nil
	})
}

// ListAll returns every user's addresses with owner details, newest first
func (s *AddressService) ListAll(ctx context.Context) ([]models.AdminAddressView, error) {
	users, err := docstore.ListAs[models.User](ctx, s.store, models.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	views := make([]models.AdminAddressView, 0)
	for _, u := range users {
		for _, a := range u.Addresses {
			views = append(views, models.AdminAddressView{
				Address:         a,
				UserID:          u.ID,
				UserEmail:       u.Email,
				UserDisplayName: u.DisplayName,
			})
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

// AdminUpdate locates an address by id across all users and updates it.
func (s *AddressService) AdminUpdate(ctx context.Context, addressID string, in AddressInput) (*models.AdminAddressView, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.AdminUpdate")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	users, err := docstore.ListAs[models.User](ctx, s.store, models.CollectionUsers)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to list users: %w", err))
	}

	for _, u := range users {
		owns := false
		for _, a := range u.Addresses {
			if a.ID == addressID {
				owns = true
				break
			}
		}
		if !owns {
			continue
		}

		updated, err := s.Update(ctx, u.ID, addressID, in)
		if err != nil {
			return nil, util.RecordError(span, err)
		}
		s.logger.Info("Address updated by admin",
			zap.String("address_id", addressID),
			zap.String("user_id", u.ID))
		return &models.AdminAddressView{
			Address:         *updated,
			UserID:          u.ID,
			UserEmail:       u.Email,
			UserDisplayName: u.DisplayName,
		}, nil
	}
	return nil, notFound("address", addressID)
}
