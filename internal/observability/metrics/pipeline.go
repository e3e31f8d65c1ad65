package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheStats is the slice of the analysis cache the gauges read.
type CacheStats interface {
	Len() int
	MemoryUsageBytes() int64
}

// PipelineMetrics covers the document pipeline: one private registry
// per process, no default-registry globals.
type PipelineMetrics struct {
	registry *prometheus.Registry

	documentsTotal    *prometheus.CounterVec
	documentDuration  *prometheus.HistogramVec
	documentsInFlight prometheus.Gauge
	classifierCalls   prometheus.Counter
	fallbacksTotal    prometheus.Counter
	pagesTotal        prometheus.Counter
}

func NewPipelineMetrics(service string, cache CacheStats) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formvault",
			Subsystem: "pipeline",
			Name:      "documents_processed_total",
			Help:      "Total processed documents by outcome.",
		},
		[]string{"service", "status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formvault",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document processing duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	documentsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "formvault",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	classifierCalls := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "formvault",
			Subsystem: "pipeline",
			Name:      "classifier_calls_total",
			Help:      "Total external classifier calls issued.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	fallbacksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "formvault",
			Subsystem: "pipeline",
			Name:      "fallback_activations_total",
			Help:      "Pages answered by the fallback chain instead of the classifier.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pagesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "formvault",
			Subsystem: "pipeline",
			Name:      "pages_analyzed_total",
			Help:      "Total pages that received an analysis.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(documentsTotal, documentDuration, documentsInFlight,
		classifierCalls, fallbacksTotal, pagesTotal)

	if cache != nil {
		registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   "formvault",
				Subsystem:   "cache",
				Name:        "entries",
				Help:        "Documents currently held in the analysis cache.",
				ConstLabels: prometheus.Labels{"service": service},
			}, func() float64 { return float64(cache.Len()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   "formvault",
				Subsystem:   "cache",
				Name:        "memory_bytes",
				Help:        "Approximate bytes held by the analysis cache.",
				ConstLabels: prometheus.Labels{"service": service},
			}, func() float64 { return float64(cache.MemoryUsageBytes()) }),
		)
	}

	return &PipelineMetrics{
		registry:          registry,
		documentsTotal:    documentsTotal,
		documentDuration:  documentDuration,
		documentsInFlight: documentsInFlight,
		classifierCalls:   classifierCalls,
		fallbacksTotal:    fallbacksTotal,
		pagesTotal:        pagesTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartDocument() {
	m.documentsInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(service string, pages int, duration time.Duration, err error) {
	m.documentsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.documentsTotal.WithLabelValues(service, status).Inc()
	m.documentDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	m.pagesTotal.Add(float64(pages))
}

func (m *PipelineMetrics) ObserveClassifierCalls(n int) {
	if n > 0 {
		m.classifierCalls.Add(float64(n))
	}
}

func (m *PipelineMetrics) ObserveFallbacks(n int) {
	if n > 0 {
		m.fallbacksTotal.Add(float64(n))
	}
}
