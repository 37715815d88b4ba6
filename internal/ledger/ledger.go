// Package ledger owns the authoritative product quantity. Nothing else
// in the codebase is allowed to read-modify-write stock.
package ledger

import (
	"context"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// inventoryStore is the slice of the store the ledger needs. The
// concrete *store.Store satisfies it.
type inventoryStore interface {
	GetProductStock(ctx context.Context, productID int64) (int, error)
	DecreaseStockTx(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error)
	DecreaseStockAllTx(ctx context.Context, lines []models.StockLine) ([]models.StockMovement, error)
	RestoreStockTx(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error)
	AdjustStockTx(ctx context.Context, productID int64, delta int) (*models.StockMovement, error)
}

// hintCache caches last-committed stock values for cheap availability
// checks.
type hintCache interface {
	GetStockHint(ctx context.Context, productID int64) (stock int, found bool, err error)
	SetStockHint(ctx context.Context, productID int64, stock int) error
}

// StockLedger serializes quantity mutation per product via the store's
// row-locking transactions and retries transient lock waits.
type StockLedger struct {
	store  inventoryStore
	hints  hintCache
	cfg    config.BusinessConfig
	logger *zap.Logger
}

// NewStockLedger creates a stock ledger. hints may be nil; availability
// checks then always read the database.
func NewStockLedger(inv inventoryStore, hints hintCache, cfg config.BusinessConfig) *StockLedger {
	return &StockLedger{
		store:  inv,
		hints:  hints,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// CheckAvailability answers whether quantity units look available. It
// holds no lock: a subsequent Decrease re-checks and can still fail.
func (l *StockLedger) CheckAvailability(ctx context.Context, productID int64, quantity int) (*models.Availability, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.CheckAvailability")
	defer span.End()

	stock, found := 0, false
	if l.hints != nil {
		var err error
		stock, found, err = l.hints.GetStockHint(ctx, productID)
		if err != nil {
			l.logger.Warn("Stock hint read failed, falling back to DB",
				zap.Int64("product_id", productID), zap.Error(err))
			found = false
		}
	}

	if !found {
		var err error
		stock, err = l.store.GetProductStock(ctx, productID)
		if err != nil {
			return nil, err
		}
		l.refreshHint(ctx, models.StockMovement{ProductID: productID, Current: stock})
	}

	return &models.Availability{
		ProductID:    productID,
		Available:    stock >= quantity,
		AvailableQty: stock,
		RequestedQty: quantity,
	}, nil
}

// Decrease removes quantity units, failing with InsufficientStockError
// when the locked row holds fewer than requested.
func (l *StockLedger) Decrease(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Decrease")
	defer span.End()
	defer l.observe("decrease")()

	var movement *models.StockMovement
	err := l.withLockRetry(ctx, "decrease", func() error {
		var err error
		movement, err = l.store.DecreaseStockTx(ctx, productID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.StockDecreasesTotal.Inc()
	l.afterMutation(ctx, *movement)
	return movement, nil
}

// DecreaseAll removes stock for every line as one atomic unit: either
// all lines commit or none do.
func (l *StockLedger) DecreaseAll(ctx context.Context, lines []models.StockLine) ([]models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.DecreaseAll")
	defer span.End()
	defer l.observe("decrease_all")()

	var movements []models.StockMovement
	err := l.withLockRetry(ctx, "decrease_all", func() error {
		var err error
		movements, err = l.store.DecreaseStockAllTx(ctx, lines)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, m := range movements {
		util.StockDecreasesTotal.Inc()
		l.afterMutation(ctx, m)
	}
	return movements, nil
}

// Restore adds quantity units back. Used as compensation; it always
// succeeds for an existing product.
func (l *StockLedger) Restore(ctx context.Context, productID int64, quantity int) (*models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Restore")
	defer span.End()
	defer l.observe("restore")()

	var movement *models.StockMovement
	err := l.withLockRetry(ctx, "restore", func() error {
		var err error
		movement, err = l.store.RestoreStockTx(ctx, productID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.StockRestoresTotal.Inc()
	l.refreshHint(ctx, *movement)
	return movement, nil
}

// Adjust applies a signed admin delta, rejecting results below zero.
func (l *StockLedger) Adjust(ctx context.Context, productID int64, delta int) (*models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Adjust")
	defer span.End()
	defer l.observe("adjust")()

	var movement *models.StockMovement
	err := l.withLockRetry(ctx, "adjust", func() error {
		var err error
		movement, err = l.store.AdjustStockTx(ctx, productID, delta)
		return err
	})
	if err != nil {
		util.StockAdjustmentsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	util.StockAdjustmentsTotal.WithLabelValues("applied").Inc()
	l.afterMutation(ctx, *movement)
	return movement, nil
}

// withLockRetry retries fn on Postgres lock_timeout with doubling
// backoff, then surfaces ErrBusy. Business failures are never retried.
func (l *StockLedger) withLockRetry(ctx context.Context, op string, fn func() error) error {
	backoff := l.cfg.StockLockBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !store.IsLockTimeout(err) {
			return err
		}

		if attempt >= l.cfg.StockLockRetries {
			util.StockLockBusyTotal.Inc()
			l.logger.Warn("Stock lock wait exhausted",
				zap.String("op", op),
				zap.Int("attempts", attempt+1))
			return models.ErrBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (l *StockLedger) afterMutation(ctx context.Context, m models.StockMovement) {
	l.refreshHint(ctx, m)

	if m.Current < l.cfg.LowStockThreshold && m.Previous >= l.cfg.LowStockThreshold {
		l.logger.Warn("Product stock below threshold",
			zap.Int64("product_id", m.ProductID),
			zap.Int("stock", m.Current),
			zap.Int("threshold", l.cfg.LowStockThreshold))
	}
}

func (l *StockLedger) refreshHint(ctx context.Context, m models.StockMovement) {
	if l.hints == nil {
		return
	}
	if err := l.hints.SetStockHint(ctx, m.ProductID, m.Current); err != nil {
		l.logger.Warn("Failed to refresh stock hint",
			zap.Int64("product_id", m.ProductID), zap.Error(err))
	}
}

func (l *StockLedger) observe(op string) func() {
	start := time.Now()
	return func() {
		util.LedgerOpLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
