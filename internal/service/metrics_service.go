package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/attendease-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	upstreamDuration *prometheus.HistogramVec
	attendanceTotal  *prometheus.CounterVec
	framesTotal      prometheus.Counter
	syncJobs         *prometheus.CounterVec
	realtimeClients  prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	attendanceCount      uint64
	frameCount           uint64
	upstreamErrorCount   uint64
	realtimeClientCount  int64
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Duration of calls to the meeting provider and recognition service",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream", "outcome"})

	attendanceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_total",
		Help: "Attendance records created, by attendance type",
	}, []string{"type"})

	framesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recognition_frames_total",
		Help: "Frames forwarded to the recognition service",
	})

	syncJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "online_sync_jobs_total",
		Help: "Online roster sync jobs, by result",
	}, []string{"result"})

	realtimeClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_clients",
		Help: "Connected websocket clients",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		upstreamDuration, attendanceTotal, framesTotal, syncJobs, realtimeClients, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		upstreamDuration: upstreamDuration,
		attendanceTotal:  attendanceTotal,
		framesTotal:      framesTotal,
		syncJobs:         syncJobs,
		realtimeClients:  realtimeClients,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveUpstream records a call to an external service.
func (m *MetricsService) ObserveUpstream(upstream string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		atomic.AddUint64(&m.upstreamErrorCount, 1)
	}
	m.upstreamDuration.WithLabelValues(upstream, outcome).Observe(duration.Seconds())
}

// RecordAttendance counts a created attendance record.
func (m *MetricsService) RecordAttendance(attendanceType models.AttendanceType) {
	if m == nil {
		return
	}
	m.attendanceTotal.WithLabelValues(string(attendanceType)).Inc()
	atomic.AddUint64(&m.attendanceCount, 1)
}

// RecordFrame counts a forwarded recognition frame.
func (m *MetricsService) RecordFrame() {
	if m == nil {
		return
	}
	m.framesTotal.Inc()
	atomic.AddUint64(&m.frameCount, 1)
}

// RecordSyncJob counts a finished online sync job.
func (m *MetricsService) RecordSyncJob(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.syncJobs.WithLabelValues(result).Inc()
}

// AddRealtimeClients adjusts the connected websocket client gauge.
func (m *MetricsService) AddRealtimeClients(delta int) {
	if m == nil {
		return
	}
	m.realtimeClients.Add(float64(delta))
	atomic.AddInt64(&m.realtimeClientCount, int64(delta))
}

// Snapshot returns aggregated metrics for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		AttendanceRecorded:       atomic.LoadUint64(&m.attendanceCount),
		FramesProcessed:          atomic.LoadUint64(&m.frameCount),
		UpstreamErrors:           atomic.LoadUint64(&m.upstreamErrorCount),
		RealtimeClients:          atomic.LoadInt64(&m.realtimeClientCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
