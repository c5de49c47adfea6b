// Package metrics exposes the federator's Prometheus metrics: request
// counts by variant and status, streaming duration, download outcomes,
// and slot-pool occupancy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "federator",
		Name:      "requests_total",
		Help:      "Client requests handled, by variant and final HTTP status.",
	}, []string{"variant", "status"})

	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "federator",
		Name:      "stream_duration_seconds",
		Help:      "Wall-clock time from request start until the response finished or failed, by variant.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"variant"})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "federator",
		Name:      "downloads_total",
		Help:      "Per-route download task outcomes, by status code.",
	}, []string{"status"})

	SlotHeld = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "federator",
		Name:      "slot_pool_held",
		Help:      "Slots currently held in the concurrency limiter, by endpoint URL.",
	}, []string{"url"})

	SlotCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "federator",
		Name:      "slot_pool_capacity",
		Help:      "Configured or discovered slot-pool capacity, by endpoint URL.",
	}, []string{"url"})

	SlotTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "federator",
		Name:      "slot_timeouts_total",
		Help:      "Slot-acquire timeouts, by endpoint URL.",
	}, []string{"url"})
)
