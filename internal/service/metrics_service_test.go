package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/courses", http.StatusOK, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordAttendance(models.AttendanceTypeOnsite)
	m.RecordFrame()
	m.ObserveUpstream("graph", errors.New("boom"), time.Second)
	m.AddRealtimeClients(2)
	m.AddRealtimeClients(-1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.01)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
	assert.Equal(t, uint64(1), snap.AttendanceRecorded)
	assert.Equal(t, uint64(1), snap.FramesProcessed)
	assert.Equal(t, uint64(1), snap.UpstreamErrors)
	assert.Equal(t, int64(1), snap.RealtimeClients)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordAttendance(models.AttendanceTypeOnline)
	m.RecordSyncJob(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `attendance_records_total{type="online"} 1`))
	assert.True(t, strings.Contains(body, `online_sync_jobs_total{result="success"} 1`))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordFrame()
	m.ObserveUpstream("recognition", nil, time.Millisecond)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
