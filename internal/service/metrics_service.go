package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the sync gateway and record stores.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	remoteTotal     *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	mirrorRecords   *prometheus.GaugeVec
	sessions        prometheus.Gauge

	requestCount  uint64
	remoteFailure uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	remoteTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remote_operations_total",
		Help: "Remote document store operations by outcome",
	}, []string{"operation", "collection", "outcome"})

	remoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remote_operation_duration_seconds",
		Help:    "Latency of remote document store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "collection"})

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "image_uploads_total",
		Help: "Image uploads by outcome (success, failed, skipped)",
	}, []string{"outcome"})

	mirrorRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mirror_records",
		Help: "Records held in local mirrors, summed over sessions",
	}, []string{"collection"})

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_sessions",
		Help: "Open viewer sessions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, remoteTotal, remoteDuration, uploads, mirrorRecords, sessions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		remoteTotal:     remoteTotal,
		remoteDuration:  remoteDuration,
		uploads:         uploads,
		mirrorRecords:   mirrorRecords,
		sessions:        sessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveRemoteOperation records the outcome and latency of a remote store call.
func (m *MetricsService) ObserveRemoteOperation(operation, collection string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		atomic.AddUint64(&m.remoteFailure, 1)
	}
	m.remoteTotal.WithLabelValues(operation, collection, outcome).Inc()
	m.remoteDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
}

// RecordUpload counts an image upload outcome.
func (m *MetricsService) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// AddMirrorRecords adjusts the mirrored record gauge of a collection by delta.
func (m *MetricsService) AddMirrorRecords(collection string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.mirrorRecords.WithLabelValues(collection).Add(float64(delta))
}

// SessionOpened increments the open session gauge.
func (m *MetricsService) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

// SessionClosed decrements the open session gauge.
func (m *MetricsService) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// Snapshot returns aggregated counters for the health endpoint.
func (m *MetricsService) Snapshot() map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"requests_total":        atomic.LoadUint64(&m.requestCount),
		"remote_failures_total": atomic.LoadUint64(&m.remoteFailure),
		"goroutines":            runtime.NumGoroutine(),
		"generated_at":          time.Now().UTC(),
	}
}
