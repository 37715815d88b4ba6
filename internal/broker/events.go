package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing order lifecycle events. Publishing
// is fire-and-forget from the coordinator's point of view: failures are
// logged by the caller, never allowed to block a commit.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishStockRestoreFailed queues a failed compensating restore for
// out-of-band retry.
func (ep *EventPublisher) PublishStockRestoreFailed(ctx context.Context, event *models.StockRestoreFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// EventHandler routes incoming events to registered handlers.
type EventHandler struct {
	onStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
	onRestoreFailed func(context.Context, *models.StockRestoreFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onStatusChanged = handler
}

// OnStockRestoreFailed registers a handler for StockRestoreFailed events
func (eh *EventHandler) OnStockRestoreFailed(handler func(context.Context, *models.StockRestoreFailedEvent) error) {
	eh.onRestoreFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderStatusChanged:
		if eh.onStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return eh.onStatusChanged(ctx, &event)
		}

	case models.EventTypeStockRestoreFailed:
		if eh.onRestoreFailed != nil {
			var event models.StockRestoreFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockRestoreFailed event: %w", err)
			}
			return eh.onRestoreFailed(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
