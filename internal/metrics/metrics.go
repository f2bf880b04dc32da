// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/chronopulse/internal/logger"
)

const namespace = "chronopulse"

// Error kinds recorded by ObserveError
const (
	KindUnavailable = "artifacts_unavailable"
	KindEncoding    = "encoding"
	KindInference   = "inference"
	KindBadRequest  = "bad_request"
	KindInternal    = "internal"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	predictions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	latency     prometheus.Histogram
	modelLoaded prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by predicted class.",
		}, []string{"prediction"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Failed prediction requests, by error kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent encoding, classifying and recommending.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		modelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when model artifacts are loaded and valid.",
		}),
	}

	reg.MustRegister(
		m.predictions,
		m.errors,
		m.latency,
		m.modelLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		counterFunc("log_errors_total", "Errors counted by the logger, including sampled-out ones.", &logger.TotalErrors),
		counterFunc("log_warnings_total", "Warnings counted by the logger, including sampled-out ones.", &logger.TotalWarnings),
		counterFunc("http_5xx_total", "HTTP responses with a 5xx status.", &logger.Total5xxErrors),
		counterFunc("http_4xx_total", "HTTP responses with a 4xx status.", &logger.Total4xxErrors),
		counterFunc("http_503_total", "HTTP responses refused for missing artifacts.", &logger.Total503Errors),
		counterFunc("slow_requests_total", "Requests slower than the slow-request threshold.", &logger.SlowRequests),
	)
	return m
}

func counterFunc(name, help string, v *atomic.Int64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

func (m *Metrics) ObservePrediction(label string, seconds float64) {
	m.predictions.WithLabelValues(label).Inc()
	m.latency.Observe(seconds)
}

func (m *Metrics) ObserveError(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.modelLoaded.Set(1)
		return
	}
	m.modelLoaded.Set(0)
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
