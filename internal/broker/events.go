package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event.EventType, event)
}

// PublishStockLevelChanged publishes a low or out-of-stock notification
func (ep *EventPublisher) PublishStockLevelChanged(ctx context.Context, event *models.StockLevelEvent) error {
	return ep.producer.PublishEvent(ctx, "product-"+event.ProductID, event.EventType, event)
}

// PublishProductRestocked publishes ProductRestocked event
func (ep *EventPublisher) PublishProductRestocked(ctx context.Context, event *models.ProductRestockedEvent) error {
	return ep.producer.PublishEvent(ctx, "product-"+event.ProductID, event.EventType, event)
}

// EventHandler routes consumed messages by event type
type EventHandler struct {
	onOrderCreated      func(context.Context, *models.OrderCreatedEvent) error
	onStockLevelChanged func(context.Context, *models.StockLevelEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnStockLevelChanged registers a handler for StockLevelChanged events
func (eh *EventHandler) OnStockLevelChanged(handler func(context.Context, *models.StockLevelEvent) error) {
	eh.onStockLevelChanged = handler
}

// ErrMalformedEvent marks a message that can never be handled. The consumer
// commits past it instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedEvent, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: OrderCreated event: %v", ErrMalformedEvent, err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeStockLevelChanged:
		if eh.onStockLevelChanged != nil {
			var event models.StockLevelEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: StockLevelChanged event: %v", ErrMalformedEvent, err)
			}
			return eh.onStockLevelChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
