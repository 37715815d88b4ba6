package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	products map[int64]models.Product
	orders   map[string]*models.Order
	items    map[string][]models.OrderItem
}

func newStubStore() *stubStore {
	return &stubStore{
		products: map[int64]models.Product{
			1: {ID: 1, SKU: "CUP-001", Name: "Teacup", Price: 1500},
		},
		orders: map[string]*models.Order{},
		items:  map[string][]models.OrderItem{},
	}
}

func (s *stubStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) CreateOrderTx(_ context.Context, order *models.Order, items []models.OrderItem) error {
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = order
	s.items[order.ID] = items
	return nil
}

func (s *stubStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrOrderNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *stubStore) GetOrderItemsByOrderID(_ context.Context, orderID string) ([]models.OrderItem, error) {
	return s.items[orderID], nil
}

func (s *stubStore) UpdateOrderStatus(_ context.Context, orderID string, from, to models.OrderStatus, _ string) (bool, error) {
	o, ok := s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if to == models.StatusCancelled {
		o.CancelledAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	return true, nil
}

type stubLedger struct {
	stock map[int64]int
	busy  bool
}

func (l *stubLedger) CheckAvailability(_ context.Context, productID int64, quantity int) (*models.Availability, error) {
	avail, ok := l.stock[productID]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrProductNotFound)
	}
	return &models.Availability{
		ProductID:    productID,
		Available:    avail >= quantity,
		AvailableQty: avail,
		RequestedQty: quantity,
	}, nil
}

func (l *stubLedger) DecreaseAll(_ context.Context, lines []models.StockLine) ([]models.StockMovement, error) {
	if l.busy {
		return nil, models.ErrBusy
	}
	var movements []models.StockMovement
	for _, line := range lines {
		current := l.stock[line.ProductID]
		if current < line.Quantity {
			return nil, &models.InsufficientStockError{
				ProductID:    line.ProductID,
				AvailableQty: current,
				RequestedQty: line.Quantity,
			}
		}
		l.stock[line.ProductID] = current - line.Quantity
		movements = append(movements, models.StockMovement{
			ProductID: line.ProductID,
			Previous:  current,
			Current:   current - line.Quantity,
		})
	}
	return movements, nil
}

func (l *stubLedger) Restore(_ context.Context, productID int64, quantity int) (*models.StockMovement, error) {
	current := l.stock[productID]
	l.stock[productID] = current + quantity
	return &models.StockMovement{ProductID: productID, Previous: current, Current: current + quantity}, nil
}

func (l *stubLedger) Adjust(_ context.Context, productID int64, delta int) (*models.StockMovement, error) {
	current := l.stock[productID]
	if current+delta < 0 {
		return nil, &models.InsufficientStockError{ProductID: productID, AvailableQty: current, RequestedQty: -delta}
	}
	l.stock[productID] = current + delta
	return &models.StockMovement{ProductID: productID, Previous: current, Current: current + delta}, nil
}

func newTestRouter(t *testing.T, ledger *stubLedger) (*gin.Engine, *stubStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newStubStore()
	cfg := config.BusinessConfig{
		GiftBoxFee:            500,
		ShippingCharge:        1000,
		FreeShippingThreshold: 20000,
		MaxAdjustDelta:        100,
	}
	coordinator := service.NewFulfillmentCoordinator(store, ledger, nil, nil, cfg)

	router := gin.New()
	NewHandler(coordinator).SetupRoutes(router)
	return router, store
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createPendingOrder(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{
		"items":            []gin.H{{"product_id": 1, "quantity": 2}},
		"customer_name":    "Aiko Tanaka",
		"customer_email":   "aiko@example.com",
		"shipping_address": "Tokyo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Order models.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Order.ID
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubLedger{stock: map[int64]int{1: 10}})

	rec := doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{
		"items": []gin.H{{"product_id": 1, "quantity": 2}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	orderID := createPendingOrder(t, router)
	assert.NotEmpty(t, orderID)
}

func TestConfirmEndpointInsufficientStock(t *testing.T) {
	router, _ := newTestRouter(t, &stubLedger{stock: map[int64]int{1: 1}})
	orderID := createPendingOrder(t, router)

	rec := doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_STOCK", resp["error"])
	assert.Equal(t, float64(1), resp["product_id"])
	assert.Equal(t, float64(1), resp["available_qty"])
	assert.Equal(t, float64(2), resp["requested_qty"])
}

func TestConfirmEndpointSuccessAndNotFound(t *testing.T) {
	router, store := newTestRouter(t, &stubLedger{stock: map[int64]int{1: 10}})
	orderID := createPendingOrder(t, router)

	rec := doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusPlaced, store.orders[orderID].Status)

	rec = doJSON(router, http.MethodPost, "/api/v1/orders/nope/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmEndpointBusy(t *testing.T) {
	router, _ := newTestRouter(t, &stubLedger{stock: map[int64]int{1: 10}, busy: true})
	orderID := createPendingOrder(t, router)

	rec := doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdateStatusEndpointRejectsIllegalMove(t *testing.T) {
	router, _ := newTestRouter(t, &stubLedger{stock: map[int64]int{1: 10}})
	orderID := createPendingOrder(t, router)

	rec := doJSON(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", gin.H{"status": "SHIPPED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_STATE", resp["error"])
	assert.Contains(t, resp["allowed"], "CANCELLED")
}

func TestUpdateStatusEndpointCancelsWithRestoration(t *testing.T) {
	ledger := &stubLedger{stock: map[int64]int{1: 10}}
	router, _ := newTestRouter(t, ledger)
	orderID := createPendingOrder(t, router)

	rec := doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 8, ledger.stock[1])

	rec = doJSON(router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", gin.H{"status": "cancelled"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 10, ledger.stock[1])

	var change service.StatusChange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &change))
	assert.Equal(t, models.StatusCancelled, change.NewStatus)
	assert.Len(t, change.RestoredStock, 1)
}

func TestAdjustEndpointValidatesDelta(t *testing.T) {
	ledger := &stubLedger{stock: map[int64]int{1: 10}}
	router, _ := newTestRouter(t, ledger)

	rec := doJSON(router, http.MethodPatch, "/api/v1/inventory/1/adjust", gin.H{"delta": 101})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodPatch, "/api/v1/inventory/1/adjust", gin.H{"delta": -11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_STOCK", resp["error"])

	rec = doJSON(router, http.MethodPatch, "/api/v1/inventory/1/adjust", gin.H{"delta": 5})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, ledger.stock[1])
}

func TestAvailabilityEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubLedger{stock: map[int64]int{1: 4}})

	rec := doJSON(router, http.MethodGet, "/api/v1/inventory/1?qty=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var avail models.Availability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &avail))
	assert.False(t, avail.Available)
	assert.Equal(t, 4, avail.AvailableQty)
	assert.Equal(t, 5, avail.RequestedQty)
}
