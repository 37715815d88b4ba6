package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of pending orders created",
	})

	OrdersConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Total number of orders confirmed with stock deducted",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order operations",
	}, []string{"reason"})

	ConfirmationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_confirmations_rejected_total",
		Help: "Total number of rejected confirmation attempts",
	}, []string{"reason"})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"from", "to"})

	StockDecreasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decreases_total",
		Help: "Total number of committed stock decreases",
	})

	StockRestoresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restores_total",
		Help: "Total number of committed compensating stock restores",
	})

	StockRestoreFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restore_failures_total",
		Help: "Total number of compensating restores that failed and were queued for retry",
	})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_total",
		Help: "Total number of direct stock adjustments",
	}, []string{"outcome"})

	StockLockBusyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_lock_busy_total",
		Help: "Total number of ledger operations that exhausted lock-wait retries",
	})

	LedgerOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_ledger_op_latency_seconds",
		Help:    "Latency of stock ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
