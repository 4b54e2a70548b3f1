package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeInventoryAdjusted  = "INVENTORY_ADJUSTED"
	EventTypePaymentSucceeded   = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed      = "PAYMENT_FAILED"
	EventTypePathsRevalidated   = "PATHS_REVALIDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and the current time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderPlacedEvent published once the checkout transaction has committed
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        int64           `json:"user_id"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published when an admin overrides one of the order status fields
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
	ActorID  int64  `json:"actor_id"`
}

// OrderCancelledEvent published when an order is cancelled and restocked
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// InventoryAdjustedEvent mirrors one inventory log row
type InventoryAdjustedEvent struct {
	BaseEvent
	LogID         int64  `json:"log_id"`
	VariantID     int64  `json:"variant_id"`
	Kind          string `json:"kind"`
	Delta         int    `json:"delta"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
}

// PaymentSucceededEvent published by payment service
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	PaymentID int64           `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	TxID      string          `json:"tx_id"`
}

// PaymentFailedEvent published by payment service
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Reason    string `json:"reason"`
}

// PathsRevalidatedEvent tells the rendering tier which views are stale
type PathsRevalidatedEvent struct {
	BaseEvent
	Paths []string `json:"paths"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	VariantID int64           `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
