package service

import (
	"context"
	"time"

	"shoe-store/internal/models"
)

// Locker serializes read-modify-write cycles on a single document.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishStockLevelChanged(ctx context.Context, event *models.StockLevelEvent) error
	PublishProductRestocked(ctx context.Context, event *models.ProductRestockedEvent) error
}

// IdempotencyStore remembers the outcome of keyed requests.
type IdempotencyStore interface {
	ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, key, result string, ttl time.Duration) error
	GetIdempotencyKey(ctx context.Context, key string) (result string, pending bool, err error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

// BlobStore stores binary objects and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Backend() string
}

func cartLockKey(userID string) string        { return "cart:" + userID }
func userLockKey(userID string) string        { return "user:" + userID }
func productLockKey(productID string) string  { return "product:" + productID }
func orderStockLockKey(orderID string) string { return "order-stock:" + orderID }
