package resilience

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Call outcomes recorded per upstream.
const (
	outcomeSuccess      = "success"
	outcomeFailure      = "failure"
	outcomeShortCircuit = "short_circuit"
)

var (
	breakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upstream_breaker_state",
		Help: "Breaker state per upstream (0=closed, 0.5=half-open, 1=open)",
	}, []string{"upstream"})

	breakerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_calls_total",
		Help: "Upstream calls made through a breaker, by outcome",
	}, []string{"upstream", "outcome"})

	breakerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_call_duration_seconds",
		Help:    "Latency of upstream calls that reached the upstream",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"upstream"})

	breakerStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_breaker_state_changes_total",
		Help: "Breaker state transitions per upstream",
	}, []string{"upstream", "from", "to"})

	breakerIDCounter uint64
)

func nextBreakerName(base string) string {
	if base != "" {
		return base
	}
	id := atomic.AddUint64(&breakerIDCounter, 1)
	return "upstream-" + strconv.FormatUint(id, 10)
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return -1
	}
}

func recordBreakerState(name string, state gobreaker.State) {
	breakerStateGauge.WithLabelValues(name).Set(breakerStateValue(state))
}

func recordBreakerStateChange(name string, from, to gobreaker.State) {
	breakerStateTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	recordBreakerState(name, to)
}

// recordCall counts one call. Short-circuited calls never reached the
// upstream and are kept out of the latency histogram.
func recordCall(name, outcome string, elapsed time.Duration) {
	breakerCallsTotal.WithLabelValues(name, outcome).Inc()
	if outcome != outcomeShortCircuit {
		breakerCallDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}
