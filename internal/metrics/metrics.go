// Package metrics implements ports.Metrics with Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

const namespace = "lemmaserve"

// Prometheus records loader and dispatcher activity.
type Prometheus struct {
	loadAttempts    *prometheus.CounterVec
	pipelinesLoaded prometheus.Gauge
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

var _ ports.Metrics = (*Prometheus)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		loadAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_load_attempts_total",
				Help:      "Count of pipeline load attempts by strategy and result.",
			},
			[]string{"strategy", "result"},
		),
		pipelinesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipelines_loaded",
				Help:      "Number of pipelines in the registry.",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "annotation_requests_total",
				Help:      "Count of annotation requests by pipeline and outcome.",
			},
			[]string{"pipeline", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "annotation_duration_seconds",
				Help:      "Pipeline processing time of annotation requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"pipeline"},
		),
	}
	reg.MustRegister(m.loadAttempts, m.pipelinesLoaded, m.requests, m.duration)
	return m
}

// LoadAttempt records the outcome of one loader strategy.
func (m *Prometheus) LoadAttempt(strategy string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.loadAttempts.WithLabelValues(strategy, result).Inc()
}

// PipelinesLoaded sets the registry size.
func (m *Prometheus) PipelinesLoaded(n int) {
	m.pipelinesLoaded.Set(float64(n))
}

// Request counts a request; processing time is observed only for requests
// that reached the pipeline.
func (m *Prometheus) Request(pipeline, outcome string, seconds float64) {
	// Unknown names come from clients and are not used as labels.
	if outcome == "unknown_pipeline" {
		pipeline = ""
	}
	m.requests.WithLabelValues(pipeline, outcome).Inc()
	if outcome == "ok" || outcome == "processing_failed" {
		m.duration.WithLabelValues(pipeline).Observe(seconds)
	}
}
