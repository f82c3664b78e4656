// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal counts danger signals by source and arbitration outcome
	// (created, annotated, ignored).
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_signals_total",
			Help: "Danger signals received by source and arbitration outcome.",
		},
		[]string{"source", "outcome"},
	)

	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_session_transitions_total",
			Help: "Emergency session state transitions.",
		},
		[]string{"from", "to"},
	)

	SessionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_sessions_closed_total",
			Help: "Sealed emergency sessions by terminal state and reason.",
		},
		[]string{"state", "reason"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_deliveries_total",
			Help: "Alert sends by result and failure reason.",
		},
		[]string{"result", "reason"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_dispatch_duration_seconds",
			Help:    "Time from activation to all sends settled.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	LocationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_location_total",
			Help: "Location acquisition attempts by outcome.",
		},
		[]string{"outcome"},
	)

	EventLogAppendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_eventlog_append_failures_total",
			Help: "Event log append failures by backend.",
		},
		[]string{"backend"},
	)
)

// RecordSignal counts one danger signal.
func RecordSignal(source, outcome string) {
	SignalsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordTransition counts one session state transition.
func RecordTransition(from, to string) {
	sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordSessionClosed counts one sealed session.
func RecordSessionClosed(state, reason string) {
	SessionsClosedTotal.WithLabelValues(state, reason).Inc()
}

// RecordDelivery counts one alert send outcome.
func RecordDelivery(delivered bool, reason string) {
	result := "failed"
	if delivered {
		result = "delivered"
		reason = "none"
	}
	if reason == "" {
		reason = "unknown"
	}
	DeliveriesTotal.WithLabelValues(result, reason).Inc()
}

// ObserveDispatch records how long a dispatch pass took.
func ObserveDispatch(d time.Duration) {
	dispatchDuration.Observe(d.Seconds())
}

// RecordLocation counts one location acquisition outcome (resolved, timeout, unavailable).
func RecordLocation(outcome string) {
	LocationTotal.WithLabelValues(outcome).Inc()
}

// RecordEventLogFailure counts one failed event-log append.
func RecordEventLogFailure(backend string) {
	EventLogAppendFailuresTotal.WithLabelValues(backend).Inc()
}
