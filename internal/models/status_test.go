package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want OrderStatus
	}{
		{"pending", StatusPendingConfirmation},
		{"pending_confirmation", StatusPendingConfirmation},
		{"confirmed", StatusPlaced},
		{"placed", StatusPlaced},
		{"PLACED", StatusPlaced},
		{"processing", StatusProcessing},
		{"PROCESSING", StatusProcessing},
		{"shipped", StatusShipped},
		{"delivered", StatusDelivered},
		{"cancelled", StatusCancelled},
		{"CANCELLED", StatusCancelled},
		{"  shipped  ", StatusShipped},
	}

	for _, tc := range cases {
		got, err := NormalizeStatus(tc.raw)
		require.NoError(t, err, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestNormalizeStatusUnknown(t *testing.T) {
	for _, raw := range []string{"", "refunded", "PAID", "pending-confirmation"} {
		_, err := NormalizeStatus(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestCanTransition(t *testing.T) {
	all := []OrderStatus{
		StatusPendingConfirmation, StatusPlaced, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled,
	}

	legal := map[OrderStatus][]OrderStatus{
		StatusPendingConfirmation: {StatusCancelled},
		StatusPlaced:              {StatusProcessing, StatusCancelled},
		StatusProcessing:          {StatusShipped, StatusCancelled},
		StatusShipped:             {StatusDelivered, StatusCancelled},
		StatusDelivered:           {},
		StatusCancelled:           {},
	}

	for _, from := range all {
		allowed := map[OrderStatus]bool{}
		for _, to := range legal[from] {
			allowed[to] = true
		}
		for _, to := range all {
			assert.Equal(t, allowed[to], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.Empty(t, AllowedTransitions(StatusDelivered))
	assert.Empty(t, AllowedTransitions(StatusCancelled))

	assert.False(t, StatusPendingConfirmation.IsTerminal())
	assert.False(t, StatusPlaced.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
}

func TestStockDeducted(t *testing.T) {
	assert.False(t, StatusPendingConfirmation.StockDeducted())
	assert.False(t, StatusCancelled.StockDeducted())

	assert.True(t, StatusPlaced.StockDeducted())
	assert.True(t, StatusProcessing.StockDeducted())
	assert.True(t, StatusShipped.StockDeducted())
	assert.True(t, StatusDelivered.StockDeducted())
}

func TestTimestampColumn(t *testing.T) {
	assert.Equal(t, "processed_at", TimestampColumn(StatusProcessing))
	assert.Equal(t, "shipped_at", TimestampColumn(StatusShipped))
	assert.Equal(t, "delivered_at", TimestampColumn(StatusDelivered))
	assert.Equal(t, "cancelled_at", TimestampColumn(StatusCancelled))
	assert.Equal(t, "", TimestampColumn(StatusPlaced))
	assert.Equal(t, "", TimestampColumn(StatusPendingConfirmation))
}

func TestInvalidStateErrorMessage(t *testing.T) {
	errTerminal := &InvalidStateError{Current: StatusCancelled}
	assert.Contains(t, errTerminal.Error(), "final status")
	assert.Contains(t, errTerminal.Error(), "CANCELLED")

	errMid := &InvalidStateError{Current: StatusPlaced, Allowed: AllowedTransitions(StatusPlaced)}
	assert.Contains(t, errMid.Error(), "PLACED")
	assert.Contains(t, errMid.Error(), "PROCESSING")
}
