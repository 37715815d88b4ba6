package models

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrSessionNotFound = errors.New("session not found or expired")

	// ErrBusy is surfaced after lock-wait retries are exhausted. It is
	// transient; InsufficientStock is not.
	ErrBusy = errors.New("stock row busy, retries exhausted")
)

// InsufficientStockError is a business outcome, not a fault: the caller
// gets enough detail to render a precise message.
type InsufficientStockError struct {
	ProductID    int64 `json:"product_id"`
	AvailableQty int   `json:"available_qty"`
	RequestedQty int   `json:"requested_qty"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.AvailableQty, e.RequestedQty)
}

// InvalidStateError rejects an operation attempted from the wrong order
// status, naming the allowed targets.
type InvalidStateError struct {
	Current OrderStatus
	Allowed []OrderStatus
}

func (e *InvalidStateError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("order is in final status %s, no transitions allowed", e.Current)
	}
	return fmt.Sprintf("illegal transition from %s, allowed: %v", e.Current, e.Allowed)
}

// ValidationError rejects malformed input before it reaches the ledger.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
