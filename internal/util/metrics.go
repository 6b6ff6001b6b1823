package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created from carts",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	CartsClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carts_cleared_total",
		Help: "Total number of carts deleted after checkout",
	})

	StockAlertsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stock_alerts",
		Help: "Number of product sizes per stock status at the last alert scan",
	}, []string{"status"})

	RestocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restocks_total",
		Help: "Total number of per-size restock overwrites",
	})

	StockDecrementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_decrements_total",
		Help: "Total number of per-size stock decrements applied from orders",
	}, []string{"result"})

	DiscountsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discounts_applied_total",
		Help: "Total number of products repriced by a discount batch",
	})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "Total number of image uploads",
	}, []string{"backend", "result"})

	UploadSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upload_size_bytes",
		Help:    "Size of accepted image uploads",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
	})

	LockContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lock_contention_total",
		Help: "Total number of lock acquisitions that gave up",
	}, []string{"scope"})

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
