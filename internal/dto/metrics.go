package dto

import "time"

// MetricsSnapshot is a JSON summary of process counters.
type MetricsSnapshot struct {
	RequestsTotal      uint64     `json:"requests_total"`
	CacheHitRatio      float64    `json:"cache_hit_ratio"`
	SyncRuns           uint64     `json:"sync_runs"`
	SyncFailures       uint64     `json:"sync_failures"`
	LastSyncFinishedAt *time.Time `json:"last_sync_finished_at,omitempty"`
	PushDelivered      uint64     `json:"push_delivered"`
	PushFailed         uint64     `json:"push_failed"`
	Goroutines         int        `json:"goroutines"`
	GeneratedAt        time.Time  `json:"generated_at"`
}
