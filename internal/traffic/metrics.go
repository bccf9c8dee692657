package traffic

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/traffic-advisor/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Fallback components and reasons used as metric labels.
const (
	componentGeocoder = "geocoder"
	componentWeather  = "weather"
	componentModel    = "model"
	componentStore    = "store"
	componentEvents   = "events"

	reasonError       = "error"
	reasonEmpty       = "empty"
	reasonInvalid     = "invalid"
	reasonDisabled    = "disabled"
	reasonCircuitOpen = "circuit_open"
)

var (
	predictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_predictions_total",
			Help: "Predictions served by congestion level and suggested mode",
		},
		[]string{"congestion", "mode"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_fallbacks_total",
			Help: "Recovered failures by component and reason",
		},
		[]string{"component", "reason"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_geo_resolutions_total",
			Help: "Location resolutions by the step that answered",
		},
		[]string{"source"},
	)

	predictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "traffic_prediction_duration_seconds",
			Help:    "End-to-end prediction latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

// recordFallback counts a recovered failure and marks it on the active span.
func recordFallback(ctx context.Context, component, reason string) {
	fallbacksTotal.WithLabelValues(component, reason).Inc()
	tracing.AddSpanEvent(ctx, "fallback",
		tracing.FallbackKey.String(component),
		attribute.String("reason", reason),
	)
}
