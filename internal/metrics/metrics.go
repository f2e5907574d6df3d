// Package metrics exposes QueueWatch's Prometheus collectors.
// Everything is registered on the default registry and served via /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed poll cycles by outcome ("ok" | "error").
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuewatch_cycles_total",
		Help: "Completed poll cycles by outcome.",
	}, []string{"outcome"})

	// CyclesSkipped counts ticks dropped because the previous cycle was still
	// running. Cycles are serialized, never queued.
	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queuewatch_cycles_skipped_total",
		Help: "Scheduler ticks skipped because a cycle was still in flight.",
	})

	// CycleDuration observes wall-clock seconds per cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "queuewatch_cycle_duration_seconds",
		Help:    "Duration of one sample-then-evaluate cycle.",
		Buckets: prometheus.DefBuckets,
	})

	// NotifySends counts channel dispatch attempts by channel and result.
	NotifySends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuewatch_notify_sends_total",
		Help: "Notification channel attempts by result.",
	}, []string{"channel", "result"})

	// InvariantRepairs counts duplicate-open-alert rows that had to be closed.
	// Any increment means the single-open-record invariant broke.
	InvariantRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queuewatch_alert_invariant_repairs_total",
		Help: "Duplicate open alert records repaired by closing the older row.",
	})

	// OpenAlerts gauges the number of entities currently below threshold.
	OpenAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queuewatch_open_alerts",
		Help: "Entities with an active alert episode.",
	})
)
