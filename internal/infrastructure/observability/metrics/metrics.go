// Package metrics exposes service counters and HTTP instrumentation.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"
)

// Metrics bundles prometheus collectors used by the service.
type Metrics struct {
	MetricsSubmitted   *prometheus.CounterVec
	ErrorsReported     *prometheus.CounterVec
	AnomaliesDetected  *prometheus.CounterVec
	DetectorFailures   prometheus.Counter
	IngestionFlushes   *prometheus.CounterVec
	IngestionDropped   *prometheus.CounterVec
	TicketsCreated     *prometheus.CounterVec
	TicketsEscalated   *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
}

var (
	_ port.Telemetry        = (*Metrics)(nil)
	_ service.DetectorHooks = (*Metrics)(nil)
)

func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		MetricsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_metrics_submitted_total",
			Help: "Total number of accepted metric samples.",
		}, []string{"metric_type", "provider"}),
		ErrorsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_errors_reported_total",
			Help: "Total number of accepted error events.",
		}, []string{"severity", "category", "provider"}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_anomalies_detected_total",
			Help: "Total number of anomalous metric values.",
		}, []string{"detection_method", "metric_type"}),
		DetectorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reskpoints_detector_failures_total",
			Help: "Total number of anomaly detector failures.",
		}),
		IngestionFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_ingestion_flushes_total",
			Help: "Total number of ingestion buffer flushes.",
		}, []string{"kind", "result"}),
		IngestionDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_ingestion_dropped_total",
			Help: "Total number of records dropped by failed flushes.",
		}, []string{"kind"}),
		TicketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_tickets_created_total",
			Help: "Total number of created tickets.",
		}, []string{"category", "priority"}),
		TicketsEscalated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_tickets_escalated_total",
			Help: "Total number of escalated tickets.",
		}, []string{"rule"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reskpoints_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reskpoints_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		m.MetricsSubmitted,
		m.ErrorsReported,
		m.AnomaliesDetected,
		m.DetectorFailures,
		m.IngestionFlushes,
		m.IngestionDropped,
		m.TicketsCreated,
		m.TicketsEscalated,
		m.RequestsTotal,
		m.RequestDurationSec,
	)

	return m
}

func (m *Metrics) ObserveMetricSubmitted(metricType, provider string) {
	m.MetricsSubmitted.WithLabelValues(metricType, provider).Inc()
}

func (m *Metrics) ObserveErrorReported(severity, category, provider string) {
	m.ErrorsReported.WithLabelValues(severity, category, provider).Inc()
}

func (m *Metrics) ObserveFlush(kind, result string) {
	m.IngestionFlushes.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveDropped(kind string, count int) {
	m.IngestionDropped.WithLabelValues(kind).Add(float64(count))
}

func (m *Metrics) ObserveTicketCreated(category, priority string) {
	m.TicketsCreated.WithLabelValues(category, priority).Inc()
}

func (m *Metrics) ObserveTicketEscalated(rule string) {
	m.TicketsEscalated.WithLabelValues(rule).Inc()
}

// AnomalyDetected implements service.DetectorHooks
func (m *Metrics) AnomalyDetected(key valueobject.SeriesKey, method service.DetectionMethod) {
	m.AnomaliesDetected.WithLabelValues(string(method), key.MetricType.String()).Inc()
}

// DetectorFailed implements service.DetectorHooks
func (m *Metrics) DetectorFailed(valueobject.SeriesKey, error) {
	m.DetectorFailures.Inc()
}

// Middleware records request count and latency per normalized route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded by collapsing path parameters.
func normalizeRoute(path string) string {
	switch {
	case path == "/api/v1/metrics", path == "/api/v1/errors", path == "/api/v1/tickets",
		path == "/api/v1/tickets/metrics", path == "/api/v1/escalations/status",
		path == "/ws", path == "/metrics", path == "/healthz", path == "/readyz":
		return path
	case strings.HasPrefix(path, "/api/v1/models/") && strings.HasSuffix(path, "/metrics"):
		return "/api/v1/models/{provider}/{model}/metrics"
	case strings.HasPrefix(path, "/api/v1/tickets/") && strings.HasSuffix(path, "/status"):
		return "/api/v1/tickets/{id}/status"
	case strings.HasPrefix(path, "/api/v1/tickets/"):
		return "/api/v1/tickets/{id}"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
