package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateOrderRequest represents a checkout request. Total and shipping
// address come from the client; when no address is given the user's default
// address is used.
type CreateOrderRequest struct {
	Total             *decimal.Decimal `json:"total"`
	ShippingAddress   *models.Address  `json:"shippingAddress"`
	ShippingAddressID string           `json:"shippingAddressId"`
	IdempotencyKey    string           `json:"-"`
}

// OrderService turns carts into orders
type OrderService struct {
	store          docstore.Store
	locker         Locker
	events         EventPublisher
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil.
func NewOrderService(store docstore.Store, locker Locker, events EventPublisher, idempotency IdempotencyStore, idempotencyTTL time.Duration) *OrderService {
	return &OrderService{
		store:          store,
		locker:         locker,
		events:         events,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		now:            time.Now,
		logger:         util.GetLogger(),
	}
}

// CreateOrder copies the cart into a pending order and deletes the cart.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.Total != nil && req.Total.IsNegative() {
		return nil, invalidf("total must not be negative")
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		key := fmt.Sprintf("order:%s:%s", userID, req.IdempotencyKey)
		existing, err := s.replay(ctx, userID, key)
		if err != nil || existing != nil {
			return existing, err
		}

		reserved, err := s.idempotency.ReserveIdempotencyKey(ctx, key, s.idempotencyTTL)
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to reserve idempotency key: %w", err))
		}
		if !reserved {
			return nil, ErrConflict
		}

		order, err := s.createOrder(ctx, userID, req)
		if err != nil {
			if delErr := s.idempotency.DeleteIdempotencyKey(ctx, key); delErr != nil {
				s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(delErr))
			}
			return nil, util.RecordError(span, err)
		}
		if err := s.idempotency.CompleteIdempotencyKey(ctx, key, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency result", zap.String("key", key), zap.Error(err))
		}
		return order, nil
	}

	order, err := s.createOrder(ctx, userID, req)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return order, nil
}

func (s *OrderService) replay(ctx context.Context, userID, key string) (*models.Order, error) {
	orderID, pending, err := s.idempotency.GetIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if pending {
		return nil, ErrConflict
	}
	if orderID == "" {
		return nil, nil
	}
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", orderID))
	return s.GetUserOrder(ctx, userID, orderID)
}

func (s *OrderService) createOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*models.Order, error) {
	var order *models.Order
	err := s.locker.WithLock(ctx, cartLockKey(userID), func(ctx context.Context) error {
		cart, exists, err := loadCart(ctx, s.store, userID)
		if err != nil {
			return err
		}
		if !exists || len(cart.Items) == 0 {
			return invalidf("cart is empty")
		}

		address, err := s.resolveAddress(ctx, userID, req)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(cart.Items))
		computed := decimal.Zero
		for _, it := range cart.Items {
			item := models.OrderItem{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity}
			p, err := getProduct(ctx, s.store, it.ProductID)
			switch {
			case err == nil:
				item.Product = p
				computed = computed.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			case !errors.Is(err, ErrNotFound):
				return err
			}
			items = append(items, item)
		}

		total := computed.Round(2)
		if req.Total != nil {
			total = *req.Total
		}

		order = &models.Order{
			UserID:          userID,
			Items:           items,
			Total:           total,
			ShippingAddress: address,
			Status:          models.OrderStatusPending,
			CreatedAt:       s.now(),
		}
		id, err := s.store.Add(ctx, models.CollectionOrders, order)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("store").Inc()
			return fmt.Errorf("failed to create order: %w", err)
		}
		order.ID = id

		// The order stands even when the cart survives; the next checkout
		// would see the same items again.
		if err := s.store.Delete(ctx, models.CollectionCarts, userID); err != nil {
			s.logger.Error("Failed to delete cart after order creation",
				zap.String("order_id", id),
				zap.String("user_id", userID),
				zap.Error(err))
		} else {
			util.CartsClearedTotal.Inc()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("total", order.Total.String()))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:   order.ID,
		UserID:    userID,
		Total:     order.Total.String(),
		Items:     make([]models.OrderItemData, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		event.Items = append(event.Items, models.OrderItemData{
			ProductID: it.ProductID,
			Size:      it.Size,
			Quantity:  it.Quantity,
		})
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) resolveAddress(ctx context.Context, userID string, req *CreateOrderRequest) (*models.Address, error) {
	if req.ShippingAddress != nil {
		return req.ShippingAddress, nil
	}

	user, err := getUser(ctx, s.store, userID)
	if errors.Is(err, ErrNotFound) {
		if req.ShippingAddressID != "" {
			return nil, notFound("address", req.ShippingAddressID)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for i := range user.Addresses {
		a := user.Addresses[i]
		if req.ShippingAddressID != "" && a.ID == req.ShippingAddressID {
			return &a, nil
		}
		if req.ShippingAddressID == "" && a.IsDefault {
			return &a, nil
		}
	}
	if req.ShippingAddressID != "" {
		return nil, notFound("address", req.ShippingAddressID)
	}
	return nil, nil
}

// ListUserOrders returns the caller's orders, newest first
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListUserOrders")
	defer span.End()

	orders, err := docstore.ListAs[models.Order](ctx, s.store, models.CollectionOrders,
		docstore.Where("userId", docstore.OpEq, userID))
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to list orders: %w", err))
	}
	sortOrdersNewestFirst(orders)
	return orders, nil
}

// GetUserOrder returns one of the caller's orders. Orders of other users are
// reported as not found.
func (s *OrderService) GetUserOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := getOrder(ctx, s.store, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, notFound("order", orderID)
	}
	return order, nil
}

func getOrder(ctx context.Context, store docstore.Store, id string) (*models.Order, error) {
	order, err := docstore.GetAs[models.Order](ctx, store, models.CollectionOrders, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return order, nil
}

func sortOrdersNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
