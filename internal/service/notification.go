package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"go.uber.org/zap"
)

// notificationFeedLimit caps the admin feed.
const notificationFeedLimit = 50

// NotificationFeed is the newest part of the admin feed.
type NotificationFeed struct {
	Items  []models.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

// NotificationService records order and stock notifications for admins.
// Documents are keyed by the event they came from, so recording the same
// event twice leaves a single notification.
type NotificationService struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewNotificationService(store docstore.Store) *NotificationService {
	return &NotificationService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// NotifyOrderCreated records a new-order notification.
func (s *NotificationService) NotifyOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	n := models.Notification{
		Type:      models.NotificationOrder,
		Title:     "New order",
		Message:   fmt.Sprintf("New order received, total %s", event.Total),
		Priority:  models.PriorityMedium,
		OrderID:   event.OrderID,
		CreatedAt: event.Timestamp,
	}
	return s.record(ctx, "order-"+event.OrderID, n)
}

// NotifyStockLevel records a low or out-of-stock notification. Out of stock
// is high priority.
func (s *NotificationService) NotifyStockLevel(ctx context.Context, event *models.StockLevelEvent) error {
	name := event.ProductID
	p, err := getProduct(ctx, s.store, event.ProductID)
	switch {
	case err == nil && p.Name != "":
		name = p.Name
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}

	priority := models.PriorityMedium
	if event.Quantity == 0 {
		priority = models.PriorityHigh
	}
	n := models.Notification{
		Type:      models.NotificationStock,
		Title:     "Low stock",
		Message:   fmt.Sprintf("%s (size %s): %d left", name, event.Size, event.Quantity),
		Priority:  priority,
		ProductID: event.ProductID,
		CreatedAt: event.Timestamp,
	}
	return s.record(ctx, "stock-"+event.EventID, n)
}

func (s *NotificationService) record(ctx context.Context, id string, n models.Notification) error {
	existing, err := s.store.Get(ctx, models.CollectionNotifications, id)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	n.ID = id
	if err := s.store.Set(ctx, models.CollectionNotifications, id, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	s.logger.Debug("Notification recorded", zap.String("id", id), zap.String("type", n.Type))
	return nil
}

// List returns the newest notifications and the unread count among them.
func (s *NotificationService) List(ctx context.Context) (*NotificationFeed, error) {
	items, err := docstore.ListAs[models.Notification](ctx, s.store, models.CollectionNotifications)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if len(items) > notificationFeedLimit {
		items = items[:notificationFeedLimit]
	}
	feed := &NotificationFeed{Items: items}
	for _, n := range items {
		if !n.Read {
			feed.Unread++
		}
	}
	return feed, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	err := s.store.Update(ctx, models.CollectionNotifications, id, map[string]any{"read": true})
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound("notification", id)
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context) (int, error) {
	unread, err := s.store.List(ctx, models.CollectionNotifications, docstore.Where("read", docstore.OpEq, false))
	if err != nil {
		return 0, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	for _, doc := range unread {
		if err := s.store.Update(ctx, models.CollectionNotifications, doc.ID, map[string]any{"read": true}); err != nil {
			return 0, fmt.Errorf("failed to mark notification %s read: %w", doc.ID, err)
		}
	}
	return len(unread), nil
}
