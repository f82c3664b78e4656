// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusDroppedTotal counts notifications and state changes that never
	// reached a subscriber.
	BusDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_bus_dropped_total",
			Help: "Bus events dropped by topic and reason.",
		},
		[]string{"topic", "reason"},
	)

	// breakerState is 0 closed, 1 half-open, 2 open.
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_circuit_breaker_state",
			Help: "Circuit breaker state per guarded dependency (0 closed, 1 half-open, 2 open).",
		},
		[]string{"breaker"},
	)

	BreakerTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_circuit_breaker_trips_total",
			Help: "Transitions into the open state by cause.",
		},
		[]string{"breaker", "cause"},
	)
)

func IncBusDropReason(topic, reason string) {
	BusDroppedTotal.WithLabelValues(orUnknown(topic), orUnknown(reason)).Inc()
}

func SetCircuitBreakerState(breaker, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(breaker).Set(v)
}

func RecordCircuitBreakerTrip(breaker, cause string) {
	BreakerTripsTotal.WithLabelValues(breaker, cause).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
