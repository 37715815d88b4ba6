package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store wraps the Postgres connection. All stock mutation goes through
// the *Tx methods here: one SELECT ... FOR UPDATE, one re-check, one
// write, per transaction.
type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewStore creates a new database store
func NewStore(databaseURL string, lockTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, lockTimeout: lockTimeout}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// IsLockTimeout reports whether err is a Postgres lock_not_available
// error (SQLSTATE 55P03), the transient case the ledger retries.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "55P03"
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetProductStock reads the current stock without holding a lock. The
// value is advisory: any mutation re-reads under FOR UPDATE.
func (s *Store) GetProductStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := s.db.GetContext(ctx, &stock, "SELECT stock FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrProductNotFound)
	}
	return stock, err
}

func (s *Store) setLockTimeout(ctx context.Context, tx *sqlx.Tx) error {
	// SET LOCAL takes no bind parameters; the value comes from config,
	// never from callers.
	_, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds()))
	return err
}

// lockStock locks one product row and returns its current stock.
func lockStock(ctx context.Context, tx *sqlx.Tx, productID int64) (int, error) {
	var stock int
	err := tx.GetContext(ctx, &stock,
		"SELECT stock FROM products WHERE id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrProductNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock stock row: %w", err)
	}
	return stock, nil
}

func writeStock(ctx context.Context, tx *sqlx.Tx, productID int64, stock int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2",
		stock, productID)
	return err
}

// DecreaseStockTx decreases stock for one product. The check and the
// write happen under the same row lock; a concurrent decrease waits and
// then sees this one's committed result.
func (s *Store) DecreaseStockTx(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	current, err := lockStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	if current < quantity {
		return nil, &models.InsufficientStockError{
			ProductID:    productID,
			AvailableQty: current,
			RequestedQty: quantity,
		}
	}

	if err := writeStock(ctx, tx, productID, current-quantity); err != nil {
		return nil, fmt.Errorf("failed to decrease stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.StockMovement{ProductID: productID, Previous: current, Current: current - quantity}, nil
}

// DecreaseStockAllTx decreases stock for every line in one transaction.
// Rows are locked in ascending product-id order so two confirmations
// touching the same products in opposite order cannot deadlock. Any
// shortfall rolls back the whole transaction: all-or-nothing.
func (s *Store) DecreaseStockAllTx(ctx context.Context, lines []models.StockLine) ([]models.StockMovement, error) {
	sorted := make([]models.StockLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	movements := make([]models.StockMovement, 0, len(sorted))
	for _, line := range sorted {
		current, err := lockStock(ctx, tx, line.ProductID)
		if err != nil {
			return nil, err
		}

		if current < line.Quantity {
			return nil, &models.InsufficientStockError{
				ProductID:    line.ProductID,
				AvailableQty: current,
				RequestedQty: line.Quantity,
			}
		}

		if err := writeStock(ctx, tx, line.ProductID, current-line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to decrease stock: %w", err)
		}

		movements = append(movements, models.StockMovement{
			ProductID: line.ProductID,
			Previous:  current,
			Current:   current - line.Quantity,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return movements, nil
}

// RestoreStockTx adds quantity back under the same locking discipline.
// It always succeeds for an existing product.
func (s *Store) RestoreStockTx(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	current, err := lockStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	if err := writeStock(ctx, tx, productID, current+quantity); err != nil {
		return nil, fmt.Errorf("failed to restore stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.StockMovement{ProductID: productID, Previous: current, Current: current + quantity}, nil
}

// AdjustStockTx applies a signed delta, rejecting any result below zero.
func (s *Store) AdjustStockTx(ctx context.Context, productID int64, delta int) (*models.StockMovement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.setLockTimeout(ctx, tx); err != nil {
		return nil, err
	}

	current, err := lockStock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	if current+delta < 0 {
		return nil, &models.InsufficientStockError{
			ProductID:    productID,
			AvailableQty: current,
			RequestedQty: -delta,
		}
	}

	if err := writeStock(ctx, tx, productID, current+delta); err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.StockMovement{ProductID: productID, Previous: current, Current: current + delta}, nil
}
