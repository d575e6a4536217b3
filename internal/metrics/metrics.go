// Package metrics exposes the assistant's prometheus instrumentation on a
// dedicated registry, grouped the way the teacher's metrics package groups
// trader/account gauges: one namespace, subsystem-per-component.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for this assistant's metrics.
var Registry = prometheus.NewRegistry()

var (
	// PositionPnLTotal tracks realized P&L per asset.
	PositionPnLTotal = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "position",
			Name:      "realized_pnl_total",
			Help:      "Realized P&L per asset",
		},
		[]string{"asset", "class"},
	)

	// OpenPositions tracks the count of currently open positions per class.
	OpenPositions = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "position",
			Name:      "open_count",
			Help:      "Number of open positions",
		},
		[]string{"class"},
	)

	// TicksTotal counts pipeline ticks processed per asset.
	TicksTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "pipeline",
			Name:      "ticks_total",
			Help:      "Pipeline ticks processed",
		},
		[]string{"asset"},
	)

	// PipelineOverrunsTotal counts ticks that exceeded the cadence interval.
	PipelineOverrunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "pipeline",
			Name:      "overruns_total",
			Help:      "Ticks that overran the cadence interval",
		},
		[]string{"asset"},
	)

	// AnomaliesTotal counts anomaly events emitted, by kind and severity.
	AnomaliesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "anomaly",
			Name:      "events_total",
			Help:      "Anomaly events emitted",
		},
		[]string{"kind", "severity"},
	)

	// LLMCallsTotal counts LLM router calls by task class, provider and
	// outcome ("ok", "error", "malformed").
	LLMCallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "llmrouter",
			Name:      "calls_total",
			Help:      "LLM router calls",
		},
		[]string{"task_class", "provider", "outcome"},
	)

	// SupervisorRestartsTotal counts unit restarts by unit name.
	SupervisorRestartsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Supervised unit restarts",
		},
		[]string{"unit"},
	)
)
