// Package metrics holds the Prometheus collectors for findings, report
// rendering and HTTP traffic. Collectors live on their own registry so tests
// and multiple servers in one process do not collide on the default one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbonduro/firecheck/internal/domain"
)

const namespace = "firecheck"

type Metrics struct {
	registry *prometheus.Registry

	findingsAdded   *prometheus.CounterVec
	findingsDeleted prometheus.Counter
	reportsRendered prometheus.Counter
	reportDuration  prometheus.Histogram
	photoFallbacks  prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.findingsAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_added_total",
		Help:      "Findings recorded, by category.",
	}, []string{"category"})

	m.findingsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_deleted_total",
		Help:      "Findings removed.",
	})

	m.reportsRendered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_rendered_total",
		Help:      "Reports rendered.",
	})

	m.reportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_render_duration_seconds",
		Help:      "Time spent rendering a report, including photo loading.",
		Buckets:   prometheus.DefBuckets,
	})

	m.photoFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_photo_fallbacks_total",
		Help:      "Photos replaced by a placeholder because they could not be decoded.",
	})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	m.registry.MustRegister(
		m.findingsAdded,
		m.findingsDeleted,
		m.reportsRendered,
		m.reportDuration,
		m.photoFallbacks,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// The recording methods are safe on a nil *Metrics so callers can run
// without metrics.

func (m *Metrics) FindingAdded(category domain.Category) {
	if m == nil {
		return
	}
	m.findingsAdded.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) FindingDeleted() {
	if m == nil {
		return
	}
	m.findingsDeleted.Inc()
}

func (m *Metrics) ReportRendered(d time.Duration, photoFallbacks int) {
	if m == nil {
		return
	}
	m.reportsRendered.Inc()
	m.reportDuration.Observe(d.Seconds())
	m.photoFallbacks.Add(float64(photoFallbacks))
}

func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
