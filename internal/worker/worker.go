package worker

import (
	"context"
	"fmt"

	"shoe-store/internal/broker"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"go.uber.org/zap"
)

// Consumer is the part of broker.Consumer the worker drives
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockDecrementer applies an order to per-size stock
type StockDecrementer interface {
	DecrementForOrder(ctx context.Context, event *models.OrderCreatedEvent) error
}

// Notifier records admin notifications for consumed events
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	NotifyStockLevel(ctx context.Context, event *models.StockLevelEvent) error
}

// InventoryWorker keeps stock in step with orders by consuming ORDER_CREATED
// events, and feeds the admin notification list from order and stock level
// events.
type InventoryWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	inventory    StockDecrementer
	notifier     Notifier
	decrement    bool
	logger       *zap.Logger
}

// NewInventoryWorker creates a new inventory worker. With decrement off,
// orders only produce notifications.
func NewInventoryWorker(consumer Consumer, inventory StockDecrementer, notifier Notifier, decrement bool) *InventoryWorker {
	w := &InventoryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		inventory:    inventory,
		notifier:     notifier,
		decrement:    decrement,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCreated(w.handleOrderCreated)
	w.eventHandler.OnStockLevelChanged(w.handleStockLevelChanged)
	return w
}

func (w *InventoryWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "InventoryWorker.HandleOrderCreated")
	defer span.End()

	if event.OrderID == "" {
		return fmt.Errorf("%w: order event %s has no order id", broker.ErrMalformedEvent, event.EventID)
	}
	if w.decrement {
		w.logger.Info("Decrementing stock for order",
			zap.String("order_id", event.OrderID),
			zap.Int("items", len(event.Items)))
		if err := w.inventory.DecrementForOrder(ctx, event); err != nil {
			return util.RecordError(span, err)
		}
	}
	return util.RecordError(span, w.notifier.NotifyOrderCreated(ctx, event))
}

func (w *InventoryWorker) handleStockLevelChanged(ctx context.Context, event *models.StockLevelEvent) error {
	w.logger.Warn("Stock level changed",
		zap.String("product_id", event.ProductID),
		zap.String("size", event.Size),
		zap.Int("quantity", event.Quantity),
		zap.String("status", event.Status))
	return w.notifier.NotifyStockLevel(ctx, event)
}

// Start blocks consuming events until ctx is cancelled
func (w *InventoryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting inventory worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *InventoryWorker) Stop() error {
	w.logger.Info("Stopping inventory worker...")
	return w.consumer.Close()
}
