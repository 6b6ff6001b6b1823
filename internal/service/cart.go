package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxCartLookups bounds the parallel product fetches of one cart read.
const maxCartLookups = 8

// CartView is a cart with every line joined to its product.
type CartView struct {
	UserID string            `json:"userId"`
	Items  []models.CartLine `json:"items"`
}

// AddCartItemRequest is the body of an add-to-cart call
type AddCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// CartService manages the per-user cart document
type CartService struct {
	store  docstore.Store
	locker Locker
	now    func() time.Time
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store docstore.Store, locker Locker) *CartService {
	return &CartService{
		store:  store,
		locker: locker,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// loadCart returns the stored cart, or an empty one when none exists.
func loadCart(ctx context.Context, store docstore.Store, userID string) (*models.Cart, bool, error) {
	doc, err := store.Get(ctx, models.CollectionCarts, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cart: %w", err)
	}
	var cart models.Cart
	if err := docstore.Decode(doc, &cart); err != nil {
		return nil, false, err
	}
	cart.UserID = userID
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return &cart, true, nil
}

// GetCart reads the cart and resolves each line's product in parallel.
// Lines whose product is gone carry a nil product.
func (s *CartService) GetCart(ctx context.Context, userID string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	cart, _, err := loadCart(ctx, s.store, userID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	lines := make([]models.CartLine, len(cart.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCartLookups)
	for i, item := range cart.Items {
		i, item := i, item
		lines[i].CartItem = item
		g.Go(func() error {
			p, err := getProduct(gctx, s.store, item.ProductID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			lines[i].Product = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, util.RecordError(span, err)
	}

	return &CartView{UserID: userID, Items: lines}, nil
}

// AddItem adds a line, merging quantities when the same product and size is
// already in the cart.
func (s *CartService) AddItem(ctx context.Context, userID string, req AddCartItemRequest) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if req.ProductID == "" {
		return nil, invalidf("productId is required")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return nil, invalidf("quantity must be positive")
	}

	p, err := getProduct(ctx, s.store, req.ProductID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if !p.Active() {
		return nil, invalidf("product %s is not available", req.ProductID)
	}
	if req.Size != "" && len(p.Sizes) > 0 && !containsString(p.Sizes, req.Size) {
		return nil, invalidf("product %s has no size %s", req.ProductID, req.Size)
	}

	var result *models.Cart
	err = s.locker.WithLock(ctx, cartLockKey(userID), func(ctx context.Context) error {
		cart, exists, err := loadCart(ctx, s.store, userID)
		if err != nil {
			return err
		}

		merged := false
		for i := range cart.Items {
			if cart.Items[i].ProductID == req.ProductID && cart.Items[i].Size == req.Size {
				cart.Items[i].Quantity += req.Quantity
				merged = true
				break
			}
		}
		if !merged {
			cart.Items = append(cart.Items, models.CartItem{
				ProductID: req.ProductID,
				Size:      req.Size,
				Quantity:  req.Quantity,
			})
		}

		if err := s.save(ctx, cart, exists); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return result, nil
}

// RemoveItem drops every line of productID. An empty size matches all sizes.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID, size string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	var result *models.Cart
	err := s.locker.WithLock(ctx, cartLockKey(userID), func(ctx context.Context) error {
		cart, exists, err := loadCart(ctx, s.store, userID)
		if err != nil {
			return err
		}
		if !exists {
			return notFound("cart", userID)
		}

		kept := cart.Items[:0]
		removed := false
		for _, item := range cart.Items {
			if item.ProductID == productID && (size == "" || item.Size == size) {
				removed = true
				continue
			}
			kept = append(kept, item)
		}
		if !removed {
			return notFound("cart item", productID)
		}
		cart.Items = kept

		if err := s.save(ctx, cart, true); err != nil {
			return err
		}
		result = cart
		return nil
	})
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return result, nil
}

// Clear deletes the cart document.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	err := s.locker.WithLock(ctx, cartLockKey(userID), func(ctx context.Context) error {
		return s.store.Delete(ctx, models.CollectionCarts, userID)
	})
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartsClearedTotal.Inc()
	return nil
}

func (s *CartService) save(ctx context.Context, cart *models.Cart, exists bool) error {
	now := s.now()
	if !exists {
		cart.CreatedAt = now
		if err := s.store.Set(ctx, models.CollectionCarts, cart.UserID, cart); err != nil {
			return fmt.Errorf("failed to create cart: %w", err)
		}
		return nil
	}
	cart.UpdatedAt = &now
	if err := s.store.Update(ctx, models.CollectionCarts, cart.UserID, map[string]any{
		"items":     cart.Items,
		"updatedAt": now,
	}); err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}
