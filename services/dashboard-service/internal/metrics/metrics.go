package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_booking_transitions_total",
			Help: "Booking lifecycle operations by action and outcome (rejected, applied, committed, rolled_back).",
		},
		[]string{"action", "outcome"},
	)

	PreferencesFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_preferences_fallback_total",
			Help: "Preference loads answered with built-in defaults.",
		},
	)

	LayerDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_calendar_layer_degraded_total",
			Help: "Calendar layers rendered empty because their feed failed.",
		},
		[]string{"layer"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_backend_request_duration_seconds",
			Help:    "Booking backend request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
