package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeStockDepleted      = "STOCK_DEPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is published after an order is durably committed.
// Consumers reload the full order from storage by ID.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Email   string          `json:"email"`
	Total   decimal.Decimal `json:"total"`
}

// OrderStatusChangedEvent is published when an admin transitions an order.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// StockDepletedEvent is published when a product's last tracked unit is sold.
type StockDepletedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
}

// ProcessedEvent records consumed event IDs so redeliveries are dropped.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
