// Package metrics provides Prometheus metrics for extraction sessions and the
// HTTP service.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every formscan collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FormsTotal       *prometheus.CounterVec
	RegionsTotal     *prometheus.CounterVec
	BoundarySources  *prometheus.CounterVec
	FormDuration     *prometheus.HistogramVec
	StageDuration    *prometheus.HistogramVec
	ExamplesWritten  prometheus.Counter
	ActiveSessions   prometheus.Gauge
	ClassifierLoaded prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register formscan metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.FormsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_forms_total",
			Help: "Forms processed, by session mode and outcome.",
		},
		[]string{"mode", "status"},
	)
	m.RegionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_regions_total",
			Help: "Attribute regions processed, by session mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	m.BoundarySources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formscan_boundary_source_total",
			Help: "Boundary sets used, by source (geometric, oracle, default).",
		},
		[]string{"source"},
	)
	m.FormDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formscan_form_duration_seconds",
			Help:    "Time to process one form, excluding human labeling.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"mode"},
	)
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formscan_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"},
	)
	m.ExamplesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "formscan_training_examples_written_total",
		Help: "Training examples appended to the store, including variants.",
	})
	m.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "formscan_active_sessions",
		Help: "Extraction sessions currently running.",
	})
	m.ClassifierLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "formscan_classifier_loaded",
		Help: "1 when a trained model is loaded, 0 when ratings are placeholders.",
	})
}

// RecordForm counts a finished form and observes its duration.
func (m *Metrics) RecordForm(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FormsTotal.WithLabelValues(mode, status).Inc()
	m.FormDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordRegion counts one region outcome.
func (m *Metrics) RecordRegion(mode, outcome string) {
	if m == nil {
		return
	}
	m.RegionsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) RecordBoundary(source string) {
	if m == nil {
		return
	}
	m.BoundarySources.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) AddExamples(n int) {
	if m == nil {
		return
	}
	m.ExamplesWritten.Add(float64(n))
}

// SessionStarted increments the active session gauge; the returned func
// decrements it.
func (m *Metrics) SessionStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveSessions.Inc()
	return m.ActiveSessions.Dec
}

func (m *Metrics) SetClassifierLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ClassifierLoaded.Set(1)
	} else {
		m.ClassifierLoaded.Set(0)
	}
}

// Registry returns the registry the metrics were registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.FormsTotal.Describe(ch)
	m.RegionsTotal.Describe(ch)
	m.BoundarySources.Describe(ch)
	m.FormDuration.Describe(ch)
	m.StageDuration.Describe(ch)
	ch <- m.ExamplesWritten.Desc()
	ch <- m.ActiveSessions.Desc()
	ch <- m.ClassifierLoaded.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.FormsTotal.Collect(ch)
	m.RegionsTotal.Collect(ch)
	m.BoundarySources.Collect(ch)
	m.FormDuration.Collect(ch)
	m.StageDuration.Collect(ch)
	ch <- m.ExamplesWritten
	ch <- m.ActiveSessions
	ch <- m.ClassifierLoaded
}
