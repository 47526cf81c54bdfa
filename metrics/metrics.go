// Package metrics exposes the engine's Prometheus counters and gauges. It
// mirrors the naming and one-collector-per-concern shape of the in-house
// metrics collector, but backs it with real Prometheus types since a
// process-wide /metrics endpoint is one of the engine's external
// interfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbridge",
		Name:      "poll_cycles_total",
		Help:      "Total poll cycles run, by connection and outcome.",
	}, []string{"connection", "outcome"})

	OrdersFoundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbridge",
		Name:      "orders_found_total",
		Help:      "Total confirmed orders discovered from Odoo, by connection.",
	}, []string{"connection"})

	OrdersDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbridge",
		Name:      "orders_delivered_total",
		Help:      "Total orders delivered to StockMaster webhooks, by connection.",
	}, []string{"connection"})

	OrdersFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderbridge",
		Name:      "orders_failed_total",
		Help:      "Total orders that permanently failed delivery, by connection.",
	}, []string{"connection"})

	RetryQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orderbridge",
		Name:      "retry_queue_depth",
		Help:      "Current count of pending retry items, by connection.",
	}, []string{"connection"})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orderbridge",
		Name:      "breaker_state",
		Help:      "Current circuit breaker state per connection (0=closed, 1=half_open, 2=open).",
	}, []string{"connection"})

	CycleDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orderbridge",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Wall-clock duration of a poll cycle, by connection.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"connection"})
)

// Register attaches every collector to reg. Called once at startup with the
// default or a test registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CyclesTotal,
		OrdersFoundTotal,
		OrdersDeliveredTotal,
		OrdersFailedTotal,
		RetryQueueDepth,
		BreakerState,
		CycleDurationSeconds,
	)
}

// BreakerStateValue maps a breaker state name to the gauge encoding used by
// BreakerState.
func BreakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half_open":
		return 1
	default:
		return 0
	}
}
