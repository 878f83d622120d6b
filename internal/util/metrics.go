package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders reconciled to PAID",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of orders reconciled to CANCELLED",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	PaymentSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_signals_total",
		Help: "Payment completion signals received",
	}, []string{"provider", "outcome"})

	PaymentUnmatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_unmatched_total",
		Help: "Notifications that matched no known order",
	})

	PaymentAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_anomalies_total",
		Help: "Success signals arriving for non-pending orders",
	})

	CheckoutSessionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_session_latency_seconds",
		Help:    "Latency of provider checkout session creation",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_total",
		Help: "Total number of authorized downloads",
	})

	DownloadsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downloads_rejected_total",
		Help: "Total number of rejected download requests",
	}, []string{"reason"})

	PayoutTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transfers_total",
		Help: "Vendor revenue-share transfers initiated",
	}, []string{"status"})

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
