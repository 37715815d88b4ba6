package models

import (
	"database/sql"
	"time"
)

// Product is owned by the catalog; the stock column is mutated only by
// the stock ledger, under a row lock.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order is a snapshot of a purchase. Orders are never deleted, only
// moved to a terminal status.
type Order struct {
	ID              string         `db:"id" json:"id"`
	Status          OrderStatus    `db:"status" json:"status"`
	SessionID       sql.NullString `db:"session_id" json:"-"`
	CustomerName    string         `db:"customer_name" json:"customer_name"`
	CustomerEmail   string         `db:"customer_email" json:"customer_email"`
	ShippingAddress string         `db:"shipping_address" json:"shipping_address"`
	Subtotal        int64          `db:"subtotal" json:"subtotal"`
	ShippingCharge  int64          `db:"shipping_charge" json:"shipping_charge"`
	GiftBoxFee      int64          `db:"gift_box_fee" json:"gift_box_fee"`
	BargainDiscount int64          `db:"bargain_discount" json:"bargain_discount"`
	Total           int64          `db:"total" json:"total"`

	// Legacy single-item orders predate order_items; these fields are
	// only meaningful when the order has no item rows.
	LegacyProductID sql.NullInt64 `db:"product_id" json:"-"`
	LegacyQuantity  sql.NullInt64 `db:"quantity" json:"-"`

	ProcessedAt sql.NullTime `db:"processed_at" json:"processed_at,omitempty"`
	ShippedAt   sql.NullTime `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt sql.NullTime `db:"delivered_at" json:"delivered_at,omitempty"`
	CancelledAt sql.NullTime `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// OrderItem is immutable once created: the quantity and price are a
// snapshot of what was purchased, independent of later catalog changes.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   string `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	LineTotal int64  `db:"line_total" json:"line_total"`
}

// Session statuses
const (
	SessionStatusActive   = "active"
	SessionStatusConsumed = "consumed"
)

// BuyNowSession is a TTL-bound snapshot of a buyer's selection. The
// coordinator reads it and marks it consumed; it owns nothing else of
// the session lifecycle.
type BuyNowSession struct {
	ID        string        `json:"id"`
	Items     []SessionItem `json:"items"`
	GiftBox   bool          `json:"gift_box"`
	Status    string        `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type SessionItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// StockLine is a product/quantity pair handed to the stock ledger.
type StockLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// StockMovement reports one committed ledger mutation.
type StockMovement struct {
	ProductID int64 `json:"product_id"`
	Previous  int   `json:"previous_stock"`
	Current   int   `json:"new_stock"`
}

// Availability is the advisory result of a stock check. It is a hint:
// a later decrease re-checks under the row lock and can still fail.
type Availability struct {
	ProductID    int64 `json:"product_id"`
	Available    bool  `json:"available"`
	AvailableQty int   `json:"available_qty"`
	RequestedQty int   `json:"requested_qty"`
}

// ProcessedEvent dedupes event consumption.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
