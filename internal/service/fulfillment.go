package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stockLedger is the slice of the ledger the coordinator uses.
type stockLedger interface {
	CheckAvailability(ctx context.Context, productID int64, quantity int) (*models.Availability, error)
	DecreaseAll(ctx context.Context, lines []models.StockLine) ([]models.StockMovement, error)
	Restore(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error)
	Adjust(ctx context.Context, productID int64, delta int) (*models.StockMovement, error)
}

// orderStore is the slice of the store the coordinator uses.
type orderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, timestampColumn string) (bool, error)
}

// sessionReader reads and consumes buy-now sessions.
type sessionReader interface {
	GetActiveSession(ctx context.Context, id string) (*models.BuyNowSession, error)
	MarkConsumed(ctx context.Context, id string) error
}

// eventPublisher emits lifecycle events; all calls are fire-and-forget.
type eventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishStockRestoreFailed(ctx context.Context, event *models.StockRestoreFailedEvent) error
}

// FulfillmentCoordinator drives an order's lifecycle: pending order
// creation, stock-checked confirmation, admin status transitions and
// compensating restoration on cancellation.
type FulfillmentCoordinator struct {
	store    orderStore
	ledger   stockLedger
	sessions sessionReader
	events   eventPublisher
	cfg      config.BusinessConfig
	logger   *zap.Logger
}

// NewFulfillmentCoordinator creates a new coordinator. events may be
// nil in tests; publishing is skipped.
func NewFulfillmentCoordinator(
	store orderStore,
	ledger stockLedger,
	sessions sessionReader,
	events eventPublisher,
	cfg config.BusinessConfig,
) *FulfillmentCoordinator {
	return &FulfillmentCoordinator{
		store:    store,
		ledger:   ledger,
		sessions: sessions,
		events:   events,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create a pending order.
// Items come either inline or from a live buy-now session.
type CreateOrderRequest struct {
	SessionID       string             `json:"session_id,omitempty"`
	Items           []OrderItemRequest `json:"items,omitempty"`
	CustomerName    string             `json:"customer_name" binding:"required"`
	CustomerEmail   string             `json:"customer_email" binding:"required"`
	ShippingAddress string             `json:"shipping_address" binding:"required"`
	GiftBox         bool               `json:"gift_box"`
	BargainDiscount int64              `json:"bargain_discount"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// ConfirmResult is the outcome of a confirmation attempt.
type ConfirmResult struct {
	Order            *models.Order          `json:"order"`
	StockMovements   []models.StockMovement `json:"stock_movements,omitempty"`
	AlreadyConfirmed bool                   `json:"already_confirmed"`
}

// StatusChange is the outcome of an admin status transition.
type StatusChange struct {
	OrderID       string                 `json:"order_id"`
	OldStatus     models.OrderStatus     `json:"old_status"`
	NewStatus     models.OrderStatus     `json:"new_status"`
	RestoredStock []models.StockMovement `json:"restored_stock,omitempty"`
}

// CreateOrder builds an order plus item snapshots in
// pending_confirmation. The stock ledger is not touched: there is no
// reservation before confirmation.
func (c *FulfillmentCoordinator) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentCoordinator.CreateOrder")
	defer span.End()

	itemReqs := req.Items
	var sessionID sql.NullString
	giftBox := req.GiftBox

	if req.SessionID != "" {
		session, err := c.sessions.GetActiveSession(ctx, req.SessionID)
		if err != nil {
			return nil, nil, err
		}
		sessionID = sql.NullString{String: session.ID, Valid: true}
		giftBox = giftBox || session.GiftBox
		itemReqs = make([]OrderItemRequest, 0, len(session.Items))
		for _, it := range session.Items {
			itemReqs = append(itemReqs, OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}

	if len(itemReqs) == 0 {
		return nil, nil, &models.ValidationError{Field: "items", Message: "at least one item required"}
	}
	for _, it := range itemReqs {
		if it.Quantity < 1 {
			return nil, nil, &models.ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("must be >= 1 for product %d", it.ProductID),
			}
		}
	}
	if req.BargainDiscount < 0 {
		return nil, nil, &models.ValidationError{Field: "bargain_discount", Message: "must not be negative"}
	}

	products, err := c.lookupProducts(ctx, itemReqs)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, nil, err
	}

	// Price snapshot at creation time; later catalog changes do not
	// affect this order.
	var subtotal int64
	items := make([]models.OrderItem, 0, len(itemReqs))
	for _, it := range itemReqs {
		product := products[it.ProductID]
		lineTotal := product.Price * int64(it.Quantity)
		subtotal += lineTotal
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
	}

	shipping := c.cfg.ShippingCharge
	if subtotal >= c.cfg.FreeShippingThreshold {
		shipping = 0
	}
	var giftBoxFee int64
	if giftBox {
		giftBoxFee = c.cfg.GiftBoxFee
	}
	total := subtotal + shipping + giftBoxFee - req.BargainDiscount
	if total < 0 {
		total = 0
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		Status:          models.StatusPendingConfirmation,
		SessionID:       sessionID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		Subtotal:        subtotal,
		ShippingCharge:  shipping,
		GiftBoxFee:      giftBoxFee,
		BargainDiscount: req.BargainDiscount,
		Total:           total,
	}

	if err := c.store.CreateOrderTx(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersPlacedTotal.Inc()
	c.logger.Info("Pending order created",
		zap.String("order_id", order.ID),
		zap.Int("items", len(items)),
		zap.Int64("total", order.Total))

	return order, items, nil
}

// ConfirmOrder turns a pending order into a committed one by deducting
// stock for every item as one atomic unit. Re-running it on an order
// that already holds stock is a no-op returning the current state.
func (c *FulfillmentCoordinator) ConfirmOrder(ctx context.Context, orderID string) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentCoordinator.ConfirmOrder")
	defer span.End()

	order, err := c.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	status, err := models.NormalizeStatus(string(order.Status))
	if err != nil {
		return nil, err
	}

	if status.StockDeducted() {
		// Idempotent replay: stock was deducted exactly once already.
		return &ConfirmResult{Order: order, AlreadyConfirmed: true}, nil
	}
	if status != models.StatusPendingConfirmation {
		util.ConfirmationsRejectedTotal.WithLabelValues("invalid_state").Inc()
		return nil, &models.InvalidStateError{Current: status, Allowed: models.AllowedTransitions(status)}
	}

	lines, err := c.orderLines(ctx, order)
	if err != nil {
		return nil, err
	}

	// Advisory pre-check: cheap rejection before any lock is taken.
	// The decrease below re-checks authoritatively.
	for _, line := range lines {
		avail, err := c.ledger.CheckAvailability(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !avail.Available {
			util.ConfirmationsRejectedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, &models.InsufficientStockError{
				ProductID:    line.ProductID,
				AvailableQty: avail.AvailableQty,
				RequestedQty: line.Quantity,
			}
		}
	}

	movements, err := c.ledger.DecreaseAll(ctx, lines)
	if err != nil {
		util.ConfirmationsRejectedTotal.WithLabelValues(confirmFailureReason(err)).Inc()
		return nil, err
	}

	// The guard compares against the stored value, which for older rows
	// may still be a legacy lowercase alias.
	updated, err := c.store.UpdateOrderStatus(ctx, order.ID,
		order.Status, models.StatusPlaced, "")
	if err != nil || !updated {
		// Lost the status race (or the write failed) after deducting:
		// put every unit back before reporting.
		c.restoreMovements(ctx, order.ID, movements)
		if err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		current, gerr := c.store.GetOrderByID(ctx, order.ID)
		if gerr != nil {
			return nil, gerr
		}
		currentStatus, nerr := models.NormalizeStatus(string(current.Status))
		if nerr != nil {
			return nil, nerr
		}
		return &ConfirmResult{Order: current, AlreadyConfirmed: currentStatus.StockDeducted()}, nil
	}

	if order.SessionID.Valid {
		if err := c.sessions.MarkConsumed(ctx, order.SessionID.String); err != nil {
			c.logger.Warn("Failed to mark session consumed",
				zap.String("session_id", order.SessionID.String), zap.Error(err))
		}
	}

	util.OrdersConfirmedTotal.Inc()
	util.StatusTransitionsTotal.WithLabelValues(
		models.StatusPendingConfirmation.String(), models.StatusPlaced.String()).Inc()
	c.logger.Info("Order confirmed",
		zap.String("order_id", order.ID),
		zap.Int("items", len(movements)))

	c.publishOrderPlaced(ctx, order, lines)

	confirmed, err := c.store.GetOrderByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Order: confirmed, StockMovements: movements}, nil
}

// UpdateStatus applies an admin transition, restoring stock when the
// order is cancelled out of a stock-deducted state.
func (c *FulfillmentCoordinator) UpdateStatus(ctx context.Context, orderID, rawStatus string) (*StatusChange, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentCoordinator.UpdateStatus")
	defer span.End()

	target, err := models.NormalizeStatus(rawStatus)
	if err != nil {
		return nil, &models.ValidationError{Field: "status", Message: err.Error()}
	}

	order, err := c.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	current, err := models.NormalizeStatus(string(order.Status))
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(current, target) {
		return nil, &models.InvalidStateError{Current: current, Allowed: models.AllowedTransitions(current)}
	}

	updated, err := c.store.UpdateOrderStatus(ctx, order.ID, order.Status, target, models.TimestampColumn(target))
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !updated {
		// The order moved concurrently; re-read and report against the
		// fresh status.
		fresh, gerr := c.store.GetOrderByID(ctx, order.ID)
		if gerr != nil {
			return nil, gerr
		}
		freshStatus, nerr := models.NormalizeStatus(string(fresh.Status))
		if nerr != nil {
			return nil, nerr
		}
		return nil, &models.InvalidStateError{Current: freshStatus, Allowed: models.AllowedTransitions(freshStatus)}
	}

	change := &StatusChange{OrderID: order.ID, OldStatus: current, NewStatus: target}

	// Compensation: a cancel out of any state reached via confirmation
	// gives the deducted units back. Best-effort; failures are queued
	// for out-of-band retry and never revert the cancellation itself.
	if target == models.StatusCancelled && current.StockDeducted() {
		change.RestoredStock = c.restoreOrderStock(ctx, order)
	}

	util.StatusTransitionsTotal.WithLabelValues(current.String(), target.String()).Inc()
	if target == models.StatusCancelled {
		util.OrdersCancelledTotal.Inc()
	}
	c.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("from", current.String()),
		zap.String("to", target.String()))

	c.publishStatusChanged(ctx, order.ID, current, target)

	return change, nil
}

// AdjustStockDirectly is the admin path straight to the ledger; it is
// not order-scoped.
func (c *FulfillmentCoordinator) AdjustStockDirectly(ctx context.Context, productID int64, delta int) (*models.StockMovement, error) {
	if delta == 0 {
		return nil, &models.ValidationError{Field: "delta", Message: "must not be zero"}
	}
	if delta > c.cfg.MaxAdjustDelta || delta < -c.cfg.MaxAdjustDelta {
		return nil, &models.ValidationError{
			Field:   "delta",
			Message: fmt.Sprintf("magnitude must not exceed %d", c.cfg.MaxAdjustDelta),
		}
	}
	return c.ledger.Adjust(ctx, productID, delta)
}

// GetOrder retrieves an order with its items. Legacy single-item orders
// surface a synthesized item view.
func (c *FulfillmentCoordinator) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := c.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := c.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if len(items) == 0 && order.LegacyProductID.Valid {
		var unitPrice int64
		if qty := order.LegacyQuantity.Int64; qty > 0 {
			unitPrice = order.Subtotal / qty
		}
		items = []models.OrderItem{{
			OrderID:   order.ID,
			ProductID: order.LegacyProductID.Int64,
			Quantity:  int(order.LegacyQuantity.Int64),
			UnitPrice: unitPrice,
			LineTotal: order.Subtotal,
		}}
	}

	return order, items, nil
}

// CheckAvailability exposes the ledger's advisory availability hint.
func (c *FulfillmentCoordinator) CheckAvailability(ctx context.Context, productID int64, quantity int) (*models.Availability, error) {
	return c.ledger.CheckAvailability(ctx, productID, quantity)
}

func (c *FulfillmentCoordinator) lookupProducts(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	products, err := c.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for _, it := range items {
		if _, ok := byID[it.ProductID]; !ok {
			return nil, fmt.Errorf("product %d: %w", it.ProductID, models.ErrProductNotFound)
		}
	}
	return byID, nil
}

// orderLines resolves what the order actually purchased, folding the
// legacy single-item columns in when no item rows exist.
func (c *FulfillmentCoordinator) orderLines(ctx context.Context, order *models.Order) ([]models.StockLine, error) {
	items, err := c.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		if !order.LegacyProductID.Valid || !order.LegacyQuantity.Valid {
			return nil, &models.ValidationError{Field: "items", Message: "order has no items"}
		}
		return []models.StockLine{{
			ProductID: order.LegacyProductID.Int64,
			Quantity:  int(order.LegacyQuantity.Int64),
		}}, nil
	}

	lines := make([]models.StockLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, models.StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

func (c *FulfillmentCoordinator) restoreMovements(ctx context.Context, orderID string, movements []models.StockMovement) {
	for _, m := range movements {
		qty := m.Previous - m.Current
		if _, err := c.ledger.Restore(ctx, m.ProductID, qty); err != nil {
			c.logger.Error("Failed to roll back stock decrease",
				zap.String("order_id", orderID),
				zap.Int64("product_id", m.ProductID),
				zap.Error(err))
			c.queueRestoreRetry(ctx, orderID, m.ProductID, qty, err)
		}
	}
}

func (c *FulfillmentCoordinator) restoreOrderStock(ctx context.Context, order *models.Order) []models.StockMovement {
	lines, err := c.orderLines(ctx, order)
	if err != nil {
		c.logger.Error("Failed to resolve items for restoration",
			zap.String("order_id", order.ID), zap.Error(err))
		return nil
	}

	restored := make([]models.StockMovement, 0, len(lines))
	for _, line := range lines {
		movement, err := c.ledger.Restore(ctx, line.ProductID, line.Quantity)
		if err != nil {
			util.StockRestoreFailuresTotal.Inc()
			c.logger.Error("Compensating restore failed",
				zap.String("order_id", order.ID),
				zap.Int64("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
			c.queueRestoreRetry(ctx, order.ID, line.ProductID, line.Quantity, err)
			continue
		}
		restored = append(restored, *movement)
	}
	return restored
}

func (c *FulfillmentCoordinator) queueRestoreRetry(ctx context.Context, orderID string, productID int64, quantity int, cause error) {
	if c.events == nil {
		return
	}
	event := &models.StockRestoreFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeStockRestoreFailed,
			Timestamp: time.Now(),
		},
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		Reason:    cause.Error(),
	}
	if err := c.events.PublishStockRestoreFailed(ctx, event); err != nil {
		c.logger.Error("Failed to queue restore retry", zap.Error(err))
	}
}

func (c *FulfillmentCoordinator) publishOrderPlaced(ctx context.Context, order *models.Order, lines []models.StockLine) {
	if c.events == nil {
		return
	}
	itemData := make([]models.OrderItemData, 0, len(lines))
	for _, line := range lines {
		itemData = append(itemData, models.OrderItemData{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		Total:   order.Total,
		Items:   itemData,
	}
	if err := c.events.PublishOrderPlaced(ctx, event); err != nil {
		c.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func (c *FulfillmentCoordinator) publishStatusChanged(ctx context.Context, orderID string, from, to models.OrderStatus) {
	if c.events == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:   orderID,
		OldStatus: from,
		NewStatus: to,
		ChangedAt: time.Now(),
	}
	if err := c.events.PublishOrderStatusChanged(ctx, event); err != nil {
		c.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func confirmFailureReason(err error) string {
	var insufficient *models.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, models.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
