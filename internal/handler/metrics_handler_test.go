package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/educore-sync/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 0)
	h := NewMetricsHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
