package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeStockLevelChanged = "STOCK_LEVEL_CHANGED"
	EventTypeProductRestocked  = "PRODUCT_RESTOCKED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after a cart is turned into an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Total   string          `json:"total"`
	Items   []OrderItemData `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

// StockLevelEvent published when a size drops into low or out of stock
type StockLevelEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

// ProductRestockedEvent published when an admin overwrites a size's stock
type ProductRestockedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// NewBaseEvent stamps a fresh event id and timestamp
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
