package models

import (
	"fmt"
	"strings"
)

// OrderStatus is the canonical order lifecycle status. Inputs are
// normalized through NormalizeStatus before any transition check;
// nothing outside this file branches on raw status strings.
type OrderStatus string

const (
	// StatusPendingConfirmation is the pre-confirmation state: the
	// order exists but no stock has been deducted. Its only exits are
	// a successful confirmation or a cancellation.
	StatusPendingConfirmation OrderStatus = "PENDING_CONFIRMATION"

	StatusPlaced     OrderStatus = "PLACED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// legacyAliases folds the lowercase statuses still emitted by older
// clients into the canonical set.
var legacyAliases = map[string]OrderStatus{
	"pending":              StatusPendingConfirmation,
	"pending_confirmation": StatusPendingConfirmation,
	"confirmed":            StatusPlaced,
	"placed":               StatusPlaced,
	"processing":           StatusProcessing,
	"shipped":              StatusShipped,
	"delivered":            StatusDelivered,
	"cancelled":            StatusCancelled,
}

// NormalizeStatus maps a raw status string (canonical or legacy
// lowercase) to its canonical form.
func NormalizeStatus(raw string) (OrderStatus, error) {
	if s, ok := legacyAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

// validNext is the transition table. Terminal statuses map to an empty
// set. Confirmation (PENDING_CONFIRMATION -> PLACED) is deliberately
// absent: it happens only through the confirmation flow, which deducts
// stock before writing the status.
var validNext = map[OrderStatus][]OrderStatus{
	StatusPendingConfirmation: {StatusCancelled},
	StatusPlaced:              {StatusProcessing, StatusCancelled},
	StatusProcessing:          {StatusShipped, StatusCancelled},
	StatusShipped:             {StatusDelivered, StatusCancelled},
	StatusDelivered:           {},
	StatusCancelled:           {},
}

// CanTransition reports whether from -> to is a legal admin transition.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the legal targets from a status.
func AllowedTransitions(from OrderStatus) []OrderStatus {
	allowed := validNext[from]
	out := make([]OrderStatus, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return len(validNext[s]) == 0 && s != ""
}

// StockDeducted reports whether an order in this status holds deducted
// stock. Every state past a successful confirmation does; a cancel from
// one of these must restore stock.
func (s OrderStatus) StockDeducted() bool {
	switch s {
	case StatusPlaced, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// TimestampColumn names the per-status timestamp the coordinator stamps
// alongside a transition into the status, or "" when none applies.
func TimestampColumn(to OrderStatus) string {
	switch to {
	case StatusProcessing:
		return "processed_at"
	case StatusShipped:
		return "shipped_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

func (s OrderStatus) String() string {
	return string(s)
}
