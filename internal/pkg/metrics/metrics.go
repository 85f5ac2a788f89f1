// Package metrics holds the prometheus collectors of the pivot pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TriggersTotal counts evaluated triggers by source and swap result
	TriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_triggers_total",
		Help: "Total triggers evaluated by source and result",
	}, []string{"source", "result"})

	// EvaluationDuration tracks classify-to-route latency per source
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pivot_evaluation_duration_seconds",
		Help:    "Pivot evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"source"})

	BudgetMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_budget_misses_total",
		Help: "Triggers that finished degraded after their latency budget",
	}, []string{"source"})

	RoutingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_routing_decisions_total",
		Help: "Routing decisions by decision",
	}, []string{"decision"})

	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pivot_version_conflicts_total",
		Help: "Slot mutations rejected for a stale version",
	})

	SlotMutationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pivot_slot_mutations_total",
		Help: "Slot mutations committed",
	})

	// RecorderEventsTotal counts pivot events by outcome (written, retried, dropped)
	RecorderEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_recorder_events_total",
		Help: "Pivot events handled by the recorder by outcome",
	}, []string{"outcome"})

	FallbackRebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pivot_fallback_rebuilds_total",
		Help: "Fallback entry rebuilds by result",
	}, []string{"result"})
)
