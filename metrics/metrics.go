// Package metrics defines the Prometheus collectors for the generation
// core and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records
// nothing, so components can take metrics as an optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	GenerationAttempts *prometheus.CounterVec
	DocumentsProduced  *prometheus.CounterVec
	ReviewVerdicts     *prometheus.CounterVec
	DedupeRejected     prometheus.Counter
	QueueSize          prometheus.Gauge
	TopUpDiscards      prometheus.Counter
	TopUpCycleSeconds  prometheus.Histogram
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GenerationAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_attempts_total",
				Help: "Upstream generation attempts by provider, model, and outcome (ok, error).",
			},
			[]string{"provider", "model", "outcome"},
		),
		DocumentsProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_produced_total",
				Help: "Documents that left the orchestrator, by kind.",
			},
			[]string{"kind"},
		),
		ReviewVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_verdicts_total",
				Help: "Compliance review outcomes (accepted, corrected, rejected, fail_open, fail_closed).",
			},
			[]string{"outcome"},
		),
		DedupeRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dedupe_rejected_total",
				Help: "Documents dropped as structural duplicates.",
			},
		),
		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prefetch_queue_size",
				Help: "Current number of entries in the prefetch queue.",
			},
		),
		TopUpDiscards: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "topup_discards_total",
				Help: "Top-up results discarded because the target was already reached.",
			},
		),
		TopUpCycleSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "topup_cycle_seconds",
				Help:    "Duration of active top-up cycles.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
	}
	m.registry.MustRegister(
		m.GenerationAttempts,
		m.DocumentsProduced,
		m.ReviewVerdicts,
		m.DedupeRejected,
		m.QueueSize,
		m.TopUpDiscards,
		m.TopUpCycleSeconds,
	)
	return m
}

// Handler returns the scrape endpoint for the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncAttempt records one upstream call outcome. Nil-safe.
func (m *Metrics) IncAttempt(provider, model, outcome string) {
	if m == nil {
		return
	}
	m.GenerationAttempts.WithLabelValues(provider, model, outcome).Inc()
}

// IncProduced records one document leaving the orchestrator. Nil-safe.
func (m *Metrics) IncProduced(kind string) {
	if m == nil {
		return
	}
	m.DocumentsProduced.WithLabelValues(kind).Inc()
}

// IncVerdict records one review outcome. Nil-safe.
func (m *Metrics) IncVerdict(outcome string) {
	if m == nil {
		return
	}
	m.ReviewVerdicts.WithLabelValues(outcome).Inc()
}

// IncDedupeRejected records one duplicate drop. Nil-safe.
func (m *Metrics) IncDedupeRejected() {
	if m == nil {
		return
	}
	m.DedupeRejected.Inc()
}

// SetQueueSize updates the queue gauge. Nil-safe.
func (m *Metrics) SetQueueSize(n int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(n))
}

// IncTopUpDiscard records one late-arrival discard. Nil-safe.
func (m *Metrics) IncTopUpDiscard() {
	if m == nil {
		return
	}
	m.TopUpDiscards.Inc()
}

// ObserveTopUpCycle records the duration of one active cycle. Nil-safe.
func (m *Metrics) ObserveTopUpCycle(seconds float64) {
	if m == nil {
		return
	}
	m.TopUpCycleSeconds.Observe(seconds)
}
