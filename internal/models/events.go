package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeStockRestoreFailed = "STOCK_RESTORE_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent is published after a confirmation commits: stock is
// deducted and the order has moved to PLACED.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Total   int64           `json:"total"`
	Items   []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent feeds the dashboard/notification sink. It is
// fire-and-forget and never blocks the transition commit.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   string      `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
	ChangedAt time.Time   `json:"changed_at"`
}

// StockRestoreFailedEvent queues a compensating restore that failed
// during cancellation for out-of-band retry.
type StockRestoreFailedEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
