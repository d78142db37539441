package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	syncRuns        *prometheus.CounterVec
	syncPhase       *prometheus.HistogramVec
	courseWrites    *prometheus.CounterVec
	subjectFailures prometheus.Counter
	proposalClosed  *prometheus.CounterVec
	pushDeliveries  *prometheus.CounterVec

	cacheHitCount   uint64
	cacheMissCount  uint64
	requestCount    uint64
	syncRunCount    uint64
	syncFailedCount uint64
	pushSentCount   uint64
	pushFailedCount uint64
	lastSyncUnix    int64
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_total",
		Help: "Catalog sync runs by outcome",
	}, []string{"outcome"})

	syncPhase := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_phase_seconds",
		Help:    "Duration of each catalog sync phase",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"phase"})

	courseWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_course_writes_total",
		Help: "Course rows written by the sync engine by action",
	}, []string{"action"})

	subjectFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_subject_failures_total",
		Help: "Subjects skipped during the course phase",
	})

	proposalClosed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_proposals_closed_total",
		Help: "Closed meeting proposals by reason",
	}, []string{"reason"})

	pushDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_deliveries_total",
		Help: "Per-device push attempts by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		syncRuns, syncPhase, courseWrites, subjectFailures, proposalClosed, pushDeliveries, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		syncRuns:        syncRuns,
		syncPhase:       syncPhase,
		courseWrites:    courseWrites,
		subjectFailures: subjectFailures,
		proposalClosed:  proposalClosed,
		pushDeliveries:  pushDeliveries,
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSyncPhase records how long a sync phase took.
func (m *MetricsService) ObserveSyncPhase(stage models.LoadStage, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncPhase.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

// RecordSyncRun counts a finished run. failed covers hard failures only.
func (m *MetricsService) RecordSyncRun(report *dto.SyncReport, failed bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.syncRunCount, 1)
	atomic.StoreInt64(&m.lastSyncUnix, time.Now().Unix())
	if failed {
		atomic.AddUint64(&m.syncFailedCount, 1)
		m.syncRuns.WithLabelValues("failed").Inc()
		return
	}
	outcome := "ok"
	if report != nil && len(report.FailedSubjects) > 0 {
		outcome = "partial"
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	if report == nil {
		return
	}
	m.courseWrites.WithLabelValues("insert").Add(float64(report.CoursesInserted))
	m.courseWrites.WithLabelValues("update").Add(float64(report.CoursesUpdated))
	m.courseWrites.WithLabelValues("repair").Add(float64(report.CoursesRepaired))
	m.subjectFailures.Add(float64(len(report.FailedSubjects)))
}

// RecordProposalClosed counts a proposal reaching its terminal state.
func (m *MetricsService) RecordProposalClosed(reason models.ProposalCloseReason) {
	if m == nil {
		return
	}
	m.proposalClosed.WithLabelValues(string(reason)).Inc()
}

// RecordPushDelivery counts one device delivery attempt.
func (m *MetricsService) RecordPushDelivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		atomic.AddUint64(&m.pushSentCount, 1)
		m.pushDeliveries.WithLabelValues("delivered").Inc()
		return
	}
	atomic.AddUint64(&m.pushFailedCount, 1)
	m.pushDeliveries.WithLabelValues("failed").Inc()
}

// Snapshot returns aggregated counters for the status endpoint.
func (m *MetricsService) Snapshot() dto.MetricsSnapshot {
	if m == nil {
		return dto.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	snapshot := dto.MetricsSnapshot{
		RequestsTotal: atomic.LoadUint64(&m.requestCount),
		CacheHitRatio: ratio,
		SyncRuns:      atomic.LoadUint64(&m.syncRunCount),
		SyncFailures:  atomic.LoadUint64(&m.syncFailedCount),
		PushDelivered: atomic.LoadUint64(&m.pushSentCount),
		PushFailed:    atomic.LoadUint64(&m.pushFailedCount),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
	if last := atomic.LoadInt64(&m.lastSyncUnix); last > 0 {
		at := time.Unix(last, 0).UTC()
		snapshot.LastSyncFinishedAt = &at
	}
	return snapshot
}
