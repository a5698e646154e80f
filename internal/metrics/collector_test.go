package babelmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/babeldcore/babeld/internal/babel"
	babelmetrics "github.com/babeldcore/babeld/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := babelmetrics.NewCollector(reg)

	if c.Neighbours == nil || c.Sources == nil || c.Routes == nil || c.Xroutes == nil {
		t.Fatal("table-size metrics should be non-nil")
	}
	if c.FeasibilityRejections == nil || c.RouteSelections == nil {
		t.Fatal("selection metrics should be non-nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestTableSizeGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := babelmetrics.NewCollector(reg)

	c.NeighbourCount(3)
	c.SourceCount(5)
	c.RouteCount(2)
	c.XrouteCount(1)

	if got := gaugeValue(t, c.Neighbours, ""); got != 3 {
		t.Errorf("Neighbours = %v, want 3", got)
	}
	if got := plainGaugeValue(t, c.Sources); got != 5 {
		t.Errorf("Sources = %v, want 5", got)
	}
	if got := plainGaugeValue(t, c.Routes); got != 2 {
		t.Errorf("Routes = %v, want 2", got)
	}
	if got := plainGaugeValue(t, c.Xroutes); got != 1 {
		t.Errorf("Xroutes = %v, want 1", got)
	}
}

func TestFeasibilityAndSelectionCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := babelmetrics.NewCollector(reg)

	c.FeasibilityRejected()
	c.FeasibilityRejected()
	if got := plainCounterValue(t, c.FeasibilityRejections); got != 2 {
		t.Errorf("FeasibilityRejections = %v, want 2", got)
	}

	c.RouteSelected(babel.OutcomeChanged)
	c.RouteSelected(babel.OutcomeInstalled)
	c.RouteSelected(babel.OutcomeSuppressed)
	c.RouteSelected(babel.OutcomeRetracted)

	if got := counterValue(t, c.RouteSelections, "change"); got != 1 {
		t.Errorf("RouteSelections[change] = %v, want 1", got)
	}
	if got := counterValue(t, c.RouteSelections, "install"); got != 1 {
		t.Errorf("RouteSelections[install] = %v, want 1", got)
	}
	if got := counterValue(t, c.RouteSelections, "suppressed"); got != 1 {
		t.Errorf("RouteSelections[suppressed] = %v, want 1", got)
	}
	if got := counterValue(t, c.RouteSelections, "retract"); got != 1 {
		t.Errorf("RouteSelections[retract] = %v, want 1", got)
	}
}

func TestWireLayerCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := babelmetrics.NewCollector(reg)

	c.IncHelloReceived("eth0")
	c.IncHelloReceived("eth0")
	c.IncUpdatesReceived("eth0")
	c.IncUpdatesSent("eth0")
	c.IncSeqnoRequestsSent("eth0")
	c.IncAuthFailures("eth0")

	if got := counterValue(t, c.HelloReceived, "eth0"); got != 2 {
		t.Errorf("HelloReceived = %v, want 2", got)
	}
	if got := counterValue(t, c.UpdatesReceived, "eth0"); got != 1 {
		t.Errorf("UpdatesReceived = %v, want 1", got)
	}
	if got := counterValue(t, c.UpdatesSent, "eth0"); got != 1 {
		t.Errorf("UpdatesSent = %v, want 1", got)
	}
	if got := counterValue(t, c.SeqnoRequestsSent, "eth0"); got != 1 {
		t.Errorf("SeqnoRequestsSent = %v, want 1", got)
	}
	if got := counterValue(t, c.AuthFailures, "eth0"); got != 1 {
		t.Errorf("AuthFailures = %v, want 1", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	g, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func plainGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
