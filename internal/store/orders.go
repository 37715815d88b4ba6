package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// CreateOrderTx inserts an order and its item snapshots in one
// transaction. The order id is assigned by the caller.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			id, status, session_id, customer_name, customer_email, shipping_address,
			subtotal, shipping_charge, gift_box_fee, bargain_discount, total,
			product_id, quantity
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.ID, order.Status, order.SessionID,
		order.CustomerName, order.CustomerEmail, order.ShippingAddress,
		order.Subtotal, order.ShippingCharge, order.GiftBoxFee, order.BargainDiscount, order.Total,
		order.LegacyProductID, order.LegacyQuantity,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].Quantity,
			items[i].UnitPrice, items[i].LineTotal,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// timestamp columns reachable from models.TimestampColumn; guards the
// dynamic column name below.
var statusTimestampColumns = map[string]bool{
	"processed_at": true,
	"shipped_at":   true,
	"delivered_at": true,
	"cancelled_at": true,
}

// UpdateOrderStatus writes the new status plus its timestamp column,
// guarded on the expected current status. Returns false when the guard
// did not match (the order moved concurrently or does not exist).
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, timestampColumn string) (bool, error) {
	query := "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3"
	if timestampColumn != "" {
		if !statusTimestampColumns[timestampColumn] {
			return false, fmt.Errorf("unknown status timestamp column: %s", timestampColumn)
		}
		query = fmt.Sprintf(
			"UPDATE orders SET status = $1, %s = NOW(), updated_at = NOW() WHERE id = $2 AND status = $3",
			timestampColumn)
	}

	res, err := s.db.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetOrdersByStatus lists orders in a status, newest first.
func (s *Store) GetOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = $1 ORDER BY created_at DESC", status)
	return orders, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
