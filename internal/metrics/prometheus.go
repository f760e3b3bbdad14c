// Package metrics exports recognition, enrollment and cache metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "face_service"

// Pipeline stages observed by ObserveStage.
const (
	StageDecode   = "decode"
	StageDetect   = "detect"
	StageLiveness = "liveness"
	StageExtract  = "extract"
	StageFetch    = "fetch"
	StageMatch    = "match"
	StageStore    = "store"
)

// Exporter owns a private registry so tests and multiple services never collide
// on the global default registry.
type Exporter struct {
	registry *prometheus.Registry

	recognitionOutcomes *prometheus.CounterVec
	enrollmentResults   *prometheus.CounterVec
	enrollmentSkipped   *prometheus.CounterVec
	cacheRequests       *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for stage latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
}

// NewExporter creates and registers all collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.recognitionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_outcomes_total",
			Help:      "Recognition requests by terminal outcome",
		},
		[]string{"outcome"},
	)

	e.enrollmentResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_results_total",
			Help:      "Enrollment requests by result",
		},
		[]string{"result"},
	)

	e.enrollmentSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_images_skipped_total",
			Help:      "Enrollment images skipped, by reason",
		},
		[]string{"reason"},
	)

	e.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Station embedding cache lookups by result",
		},
		[]string{"result"},
	)

	e.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"stage"},
	)

	registry.MustRegister(
		e.recognitionOutcomes,
		e.enrollmentResults,
		e.enrollmentSkipped,
		e.cacheRequests,
		e.stageDuration,
	)
	return e
}

// RecordRecognition counts one recognition outcome.
func (e *Exporter) RecordRecognition(outcome string) {
	e.recognitionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordEnrollment counts one enrollment result.
func (e *Exporter) RecordEnrollment(result string) {
	e.enrollmentResults.WithLabelValues(result).Inc()
}

// RecordEnrollmentSkip counts one skipped enrollment image.
func (e *Exporter) RecordEnrollmentSkip(reason string) {
	e.enrollmentSkipped.WithLabelValues(reason).Inc()
}

// CacheLookup implements cache.Recorder.
func (e *Exporter) CacheLookup(result string) {
	e.cacheRequests.WithLabelValues(result).Inc()
}

// ObserveStage records how long a stage took.
func (e *Exporter) ObserveStage(stage string, d time.Duration) {
	e.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}
