package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceRemoteOperations(t *testing.T) {
	m := NewMetricsService()
	m.ObserveRemoteOperation("create", "students", nil, 10*time.Millisecond)
	m.ObserveRemoteOperation("create", "students", errors.New("down"), 10*time.Millisecond)
	m.ObserveRemoteOperation("create", "students", errors.New("down"), 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.remoteTotal.WithLabelValues("create", "students", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.remoteTotal.WithLabelValues("create", "students", "error")))
	assert.EqualValues(t, 2, m.Snapshot()["remote_failures_total"])
}

func TestMetricsServiceHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/records", http.StatusOK, 5*time.Millisecond)
	m.AddMirrorRecords("students", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/records",status="200"} 1`)
	assert.Contains(t, body, `mirror_records{collection="students"} 3`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.ObserveRemoteOperation("refresh", "students", nil, time.Millisecond)
		m.RecordUpload("success")
		m.AddMirrorRecords("students", 1)
		m.SessionOpened()
		m.SessionClosed()
	})
	assert.Empty(t, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
