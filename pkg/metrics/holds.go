package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HoldSweepMetrics tracks sweep runs and per-unit outcomes.
type HoldSweepMetrics struct {
	runs     *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	breaker  prometheus.Gauge
}

// NewHoldSweepMetrics registers the sweep metrics on reg. A nil reg yields a no-op collector.
func NewHoldSweepMetrics(reg prometheus.Registerer) *HoldSweepMetrics {
	if reg == nil {
		return &HoldSweepMetrics{}
	}
	m := &HoldSweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "sweeps_total",
			Help:      "Hold expiry sweeps by trigger and result.",
		}, []string{"trigger", "result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "sweep_units_total",
			Help:      "Units evaluated by the sweeper, by decision.",
		}, []string{"decision"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of hold expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		breaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holds",
			Name:      "store_breaker_state",
			Help:      "Inventory store circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
	}
	reg.MustRegister(m.runs, m.outcomes, m.duration, m.breaker)
	return m
}

// ObserveSweep records one finished sweep.
func (m *HoldSweepMetrics) ObserveSweep(trigger string, ok bool, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.runs.WithLabelValues(normalizeLabel(trigger), result).Inc()
	m.duration.Observe(duration.Seconds())
}

// AddDecision adds n units to the decision counter.
func (m *HoldSweepMetrics) AddDecision(decision string, n int) {
	if m == nil || m.outcomes == nil || n <= 0 {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(decision)).Add(float64(n))
}

// SetBreakerState publishes the store breaker state.
func (m *HoldSweepMetrics) SetBreakerState(state int) {
	if m == nil || m.breaker == nil {
		return
	}
	m.breaker.Set(float64(state))
}
