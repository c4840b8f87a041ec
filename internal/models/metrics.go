package models

import "time"

// SystemMetrics is a lightweight JSON view over the Prometheus collectors.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	AttendanceRecorded       uint64    `json:"attendance_recorded"`
	FramesProcessed          uint64    `json:"frames_processed"`
	UpstreamErrors           uint64    `json:"upstream_errors"`
	RealtimeClients          int64     `json:"realtime_clients"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
