package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	coordinator *service.FulfillmentCoordinator
}

// NewHandler creates a new HTTP handler
func NewHandler(coordinator *service.FulfillmentCoordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/confirm", h.confirmOrder)
		v1.PATCH("/orders/:id/status", h.updateStatus)
		v1.GET("/inventory/:productId", h.checkAvailability)
		v1.PATCH("/inventory/:productId/adjust", h.adjustStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder creates a pending order from inline items or a buy-now
// session. No stock is touched until confirmation.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION",
			"details": err.Error(),
		})
		return
	}

	order, items, err := h.coordinator.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order": order,
		"items": items,
	})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.coordinator.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// confirmOrder runs the stock-checked confirmation.
func (h *Handler) confirmOrder(c *gin.Context) {
	result, err := h.coordinator.ConfirmOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateStatus applies an admin-driven status transition.
func (h *Handler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION",
			"details": err.Error(),
		})
		return
	}

	change, err := h.coordinator.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, change)
}

// checkAvailability returns the advisory stock hint.
func (h *Handler) checkAvailability(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "details": "invalid product ID"})
		return
	}

	qty := 1
	if raw := c.Query("qty"); raw != "" {
		qty, err = strconv.Atoi(raw)
		if err != nil || qty < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "details": "invalid qty"})
			return
		}
	}

	avail, err := h.coordinator.CheckAvailability(c.Request.Context(), productID, qty)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, avail)
}

type adjustStockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// adjustStock is the admin path straight to the ledger.
func (h *Handler) adjustStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION", "details": "invalid product ID"})
		return
	}

	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION",
			"details": err.Error(),
		})
		return
	}

	movement, err := h.coordinator.AdjustStockDirectly(c.Request.Context(), productID, req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, movement)
}

// writeError maps the error taxonomy to HTTP with structured detail.
func writeError(c *gin.Context, err error) {
	var insufficient *models.InsufficientStockError
	var invalidState *models.InvalidStateError
	var validation *models.ValidationError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         "INSUFFICIENT_STOCK",
			"product_id":    insufficient.ProductID,
			"available_qty": insufficient.AvailableQty,
			"requested_qty": insufficient.RequestedQty,
		})

	case errors.As(err, &invalidState):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_STATE",
			"current": invalidState.Current,
			"allowed": invalidState.Allowed,
		})

	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION",
			"field":   validation.Field,
			"details": validation.Message,
		})

	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "NO_VALID_SESSION",
			"details": err.Error(),
		})

	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_FOUND",
			"details": err.Error(),
		})

	case errors.Is(err, models.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "BUSY",
			"details": "stock row contended, retry later",
		})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
