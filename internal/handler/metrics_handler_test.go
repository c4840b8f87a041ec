package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
)

type fakeMetricsSource struct{}

func (fakeMetricsSource) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("attendease_http_requests_total 1\n"))
	})
}

func (fakeMetricsSource) Snapshot() models.SystemMetrics {
	return models.SystemMetrics{RequestsTotal: 12, CacheHits: 4, AttendanceRecorded: 2}
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := NewMetricsHandler(fakeMetricsSource{}, map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
	})
	r := testRouter("", "")
	r.GET("/ready", healthy.Ready)

	w := doJSON(r, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)

	degraded := NewMetricsHandler(fakeMetricsSource{}, map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	r2 := testRouter("", "")
	r2.GET("/ready", degraded.Ready)

	w = doJSON(r2, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestMetricsHandlerEndpoints(t *testing.T) {
	h := NewMetricsHandler(fakeMetricsSource{}, nil)
	r := testRouter("", "")
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/snapshot", h.Snapshot)

	assert.Contains(t, doJSON(r, http.MethodGet, "/health", nil).Body.String(), `"status":"ok"`)
	assert.Contains(t, doJSON(r, http.MethodGet, "/metrics", nil).Body.String(), "attendease_http_requests_total")

	w := doJSON(r, http.MethodGet, "/metrics/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.SystemMetrics
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snapshot))
	assert.Equal(t, uint64(12), snapshot.RequestsTotal)
}

func TestMetricsHandlerWithoutSource(t *testing.T) {
	h := NewMetricsHandler(nil, nil)
	r := testRouter("", "")
	r.GET("/metrics", h.Prometheus)

	assert.Equal(t, http.StatusServiceUnavailable, doJSON(r, http.MethodGet, "/metrics", nil).Code)
}
