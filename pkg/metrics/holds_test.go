package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHoldSweepMetricsExportsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHoldSweepMetrics(reg)

	m.ObserveSweep("manual", true, 120*time.Millisecond)
	m.ObserveSweep("scheduled", false, 10*time.Millisecond)
	m.AddDecision("release", 3)
	m.AddDecision("skip_system", 2)
	m.AddDecision("skip_active", 0)
	m.SetBreakerState(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "eventbook_holds_sweep_units_total", "decision", "release"); err != nil || got != 3 {
		t.Fatalf("expected release=3, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "eventbook_holds_sweep_units_total", "decision", "skip_system"); err != nil || got != 2 {
		t.Fatalf("expected skip_system=2, got %f err=%v", got, err)
	}
	if _, err := fetchCounterValue(mfs, "eventbook_holds_sweep_units_total", "decision", "skip_active"); err == nil {
		t.Fatal("zero additions should not create a series")
	}
	if got, err := fetchCounterValue(mfs, "eventbook_holds_sweeps_total", "result", "error"); err != nil || got != 1 {
		t.Fatalf("expected one failed sweep, got %f err=%v", got, err)
	}

	breaker := findMetricFamily(mfs, "eventbook_holds_store_breaker_state")
	if breaker == nil || breaker.GetMetric()[0].GetGauge().GetValue() != 2 {
		t.Fatalf("expected breaker gauge at 2")
	}
}

func TestNilHoldSweepMetricsIsNoop(t *testing.T) {
	var m *HoldSweepMetrics
	m.ObserveSweep("manual", true, time.Second)
	m.AddDecision("release", 1)
	m.SetBreakerState(1)
	NewHoldSweepMetrics(nil).AddDecision("release", 1)
}
