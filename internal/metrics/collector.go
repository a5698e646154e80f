// Package babelmetrics exposes Prometheus instrumentation for the babeld
// core, wired in as a babel.MetricsSink plus a handful of wire/selection
// counters the core has no seam for on its own.
package babelmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/babeldcore/babeld/internal/babel"
)

const (
	namespace = "babeld"
	subsystem = "core"
)

// Label names.
const (
	labelInterface = "interface"
	labelOutcome   = "outcome"
)

// Collector holds every babeld Prometheus metric and satisfies
// babel.MetricsSink so it can be wired straight into babel.WithMetrics.
type Collector struct {
	// Neighbours, Sources, Routes, Xroutes track current table sizes,
	// pushed by the core on every mutation.
	Neighbours *prometheus.GaugeVec
	Sources    prometheus.Gauge
	Routes     prometheus.Gauge
	Xroutes    prometheus.Gauge

	// FeasibilityRejections counts Updates rejected by the feasibility
	// condition, a leading indicator of an unstable or looping topology.
	FeasibilityRejections prometheus.Counter

	// RouteSelections counts reselect() outcomes, labeled by what
	// happened: "install", "change", "retract", or "suppressed" (the
	// hysteresis damping window held the prior route).
	RouteSelections *prometheus.CounterVec

	// HelloReceived, UpdatesReceived, UpdatesSent, SeqnoRequestsSent
	// count wire-layer events, labeled by the receiving/sending
	// interface.
	HelloReceived     *prometheus.CounterVec
	UpdatesReceived   *prometheus.CounterVec
	UpdatesSent       *prometheus.CounterVec
	SeqnoRequestsSent *prometheus.CounterVec

	// AuthFailures counts packets dropped for failing TLV authentication.
	AuthFailures *prometheus.CounterVec
}

// NewCollector creates a Collector with every babeld metric registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Neighbours,
		c.Sources,
		c.Routes,
		c.Xroutes,
		c.FeasibilityRejections,
		c.RouteSelections,
		c.HelloReceived,
		c.UpdatesReceived,
		c.UpdatesSent,
		c.SeqnoRequestsSent,
		c.AuthFailures,
	)

	return c
}

func newMetrics() *Collector {
	ifaceLabels := []string{labelInterface}

	return &Collector{
		Neighbours: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "neighbours", Help: "Number of known neighbours.",
		}, ifaceLabels),

		Sources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "sources", Help: "Number of entries in the source table.",
		}),

		Routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "routes", Help: "Number of destinations with at least one candidate route.",
		}),

		Xroutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "xroutes", Help: "Number of locally-exported routes.",
		}),

		FeasibilityRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "feasibility_rejections_total",
			Help: "Total Updates rejected by the feasibility condition.",
		}),

		RouteSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "route_selections_total",
			Help: "Total route reselection outcomes, labeled by outcome.",
		}, []string{labelOutcome}),

		HelloReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "hello_received_total", Help: "Total Hello TLVs received.",
		}, ifaceLabels),

		UpdatesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "updates_received_total", Help: "Total Update TLVs received.",
		}, ifaceLabels),

		UpdatesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "updates_sent_total", Help: "Total Update TLVs sent.",
		}, ifaceLabels),

		SeqnoRequestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "seqno_requests_sent_total", Help: "Total Seqno Request TLVs sent.",
		}, ifaceLabels),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "auth_failures_total", Help: "Total packets dropped for failing TLV authentication.",
		}, ifaceLabels),
	}
}

// -------------------------------------------------------------------------
// babel.MetricsSink
// -------------------------------------------------------------------------

// NeighbourCount implements babel.MetricsSink. The core reports the
// aggregate count only, so it is exposed under the empty interface
// label; per-interface breakdowns come from IncHelloReceived et al.
func (c *Collector) NeighbourCount(n int) {
	c.Neighbours.WithLabelValues("").Set(float64(n))
}

func (c *Collector) SourceCount(n int) { c.Sources.Set(float64(n)) }
func (c *Collector) RouteCount(n int)  { c.Routes.Set(float64(n)) }
func (c *Collector) XrouteCount(n int) { c.Xroutes.Set(float64(n)) }

func (c *Collector) FeasibilityRejected() { c.FeasibilityRejections.Inc() }

// RouteSelected implements babel.MetricsSink, recording the reselect()
// outcome under its matching RouteSelections label.
func (c *Collector) RouteSelected(outcome babel.SelectionOutcome) {
	switch outcome {
	case babel.OutcomeInstalled:
		c.RouteSelections.WithLabelValues("install").Inc()
	case babel.OutcomeRetracted:
		c.IncRouteSelectionRetracted()
	case babel.OutcomeSuppressed:
		c.IncRouteSelectionSuppressed()
	default:
		c.RouteSelections.WithLabelValues("change").Inc()
	}
}

// -------------------------------------------------------------------------
// Wire-layer counters
// -------------------------------------------------------------------------

func (c *Collector) IncHelloReceived(ifName string) { c.HelloReceived.WithLabelValues(ifName).Inc() }
func (c *Collector) IncUpdatesReceived(ifName string) {
	c.UpdatesReceived.WithLabelValues(ifName).Inc()
}
func (c *Collector) IncUpdatesSent(ifName string) { c.UpdatesSent.WithLabelValues(ifName).Inc() }
func (c *Collector) IncSeqnoRequestsSent(ifName string) {
	c.SeqnoRequestsSent.WithLabelValues(ifName).Inc()
}
func (c *Collector) IncAuthFailures(ifName string) { c.AuthFailures.WithLabelValues(ifName).Inc() }
func (c *Collector) IncRouteSelectionSuppressed() {
	c.RouteSelections.WithLabelValues("suppressed").Inc()
}
func (c *Collector) IncRouteSelectionRetracted() { c.RouteSelections.WithLabelValues("retract").Inc() }
