package worker

import (
	"context"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker is the status/notification sink: it consumes
// lifecycle events for the dashboard and logs. It never feeds back into
// the transition path.
type NotificationWorker struct {
	consumer *broker.Consumer
	handler  *broker.EventHandler
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer) *NotificationWorker {
	logger := util.GetLogger()
	handler := broker.NewEventHandler()

	handler.OnOrderStatusChanged(func(ctx context.Context, event *models.OrderStatusChangedEvent) error {
		logger.Info("Order status notification",
			zap.String("order_id", event.OrderID),
			zap.String("old_status", event.OldStatus.String()),
			zap.String("new_status", event.NewStatus.String()),
			zap.Time("changed_at", event.ChangedAt))
		return nil
	})

	return &NotificationWorker{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// restoreLedger is the slice of the stock ledger the retry worker uses.
type restoreLedger interface {
	Restore(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error)
}

// eventDeduper prevents a retried restore from applying twice.
type eventDeduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// RestoreRetryWorker retries compensating restores that failed during
// cancellation. Cancellation never waits on these; stock correctness is
// repaired here, out of band.
type RestoreRetryWorker struct {
	consumer *broker.Consumer
	handler  *broker.EventHandler
	logger   *zap.Logger
}

// NewRestoreRetryWorker creates a new restore retry worker
func NewRestoreRetryWorker(consumer *broker.Consumer, ledger restoreLedger, deduper eventDeduper) *RestoreRetryWorker {
	logger := util.GetLogger()
	handler := broker.NewEventHandler()

	handler.OnStockRestoreFailed(func(ctx context.Context, event *models.StockRestoreFailedEvent) error {
		processed, err := deduper.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			logger.Info("Restore already applied", zap.String("event_id", event.EventID))
			return nil
		}

		movement, err := ledger.Restore(ctx, event.ProductID, event.Quantity)
		if err != nil {
			// Not committed; the event is redelivered and retried.
			logger.Error("Restore retry failed",
				zap.String("order_id", event.OrderID),
				zap.Int64("product_id", event.ProductID),
				zap.Error(err))
			return err
		}

		if err := deduper.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			logger.Error("Failed to mark restore event processed", zap.Error(err))
		}

		logger.Info("Deferred restore applied",
			zap.String("order_id", event.OrderID),
			zap.Int64("product_id", event.ProductID),
			zap.Int("quantity", event.Quantity),
			zap.Int("new_stock", movement.Current))
		return nil
	})

	return &RestoreRetryWorker{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start starts the worker
func (w *RestoreRetryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting restore retry worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *RestoreRetryWorker) Stop() error {
	w.logger.Info("Stopping restore retry worker")
	return w.consumer.Close()
}
