package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/invigilo/exam-duty-api/internal/models"
)

// MetricsService owns the Prometheus registry and keeps atomic aggregates
// alongside it for the JSON snapshot endpoint. A nil receiver is a no-op
// everywhere so tests can skip instrumentation.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	solveDuration   *prometheus.HistogramVec
	assignmentsMade prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	solveCount           uint64
	solveDurationTotal   uint64
	assignmentCount      uint64
}

func histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func histogram(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: name, Help: help, Buckets: prometheus.DefBuckets,
	})
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// NewMetricsService builds a fresh registry with the HTTP, cache and solver
// collectors registered.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),

		requestDuration: histogramVec("http_request_duration_seconds",
			"Duration of HTTP requests in seconds", prometheus.DefBuckets,
			"method", "path", "status"),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		cacheLatency: histogram("cache_latency_seconds", "Latency for cache lookups"),
		cacheWrite:   histogram("cache_write_seconds", "Latency for cache set operations"),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits:   counter("cache_hits_total", "Total cache hits"),
		cacheMisses: counter("cache_misses_total", "Total cache misses"),

		solveDuration: histogramVec("auto_assign_solve_duration_seconds",
			"Wall clock duration of auto assignment solves",
			[]float64{0.1, 0.5, 1, 5, 10, 30, 60},
			"status"),
		assignmentsMade: counter("auto_assign_assignments_total",
			"Total assignments placed by the auto assignment engine"),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.solveDuration, m.assignmentsMade,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one finished request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records one cache lookup and refreshes the hit ratio.
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
	if ratio, ok := m.hitRatio(); ok {
		m.cacheHitRatio.Set(ratio)
	}
}

// ObserveCacheWrite records the duration of one cache set.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSolve records one auto assignment solve labelled by its outcome.
func (m *MetricsService) ObserveSolve(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(status).Observe(duration.Seconds())
	atomic.AddUint64(&m.solveCount, 1)
	atomic.AddUint64(&m.solveDurationTotal, uint64(duration.Nanoseconds()))
}

// AddAssignments counts assignments placed by the engine.
func (m *MetricsService) AddAssignments(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.assignmentsMade.Add(float64(count))
	atomic.AddUint64(&m.assignmentCount, uint64(count))
}

// Snapshot aggregates the atomic counters for the status endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}

	snap := models.SystemMetrics{
		CacheHits:       atomic.LoadUint64(&m.cacheHitCount),
		CacheMisses:     atomic.LoadUint64(&m.cacheMissCount),
		RequestsTotal:   atomic.LoadUint64(&m.requestCount),
		SolveCount:      atomic.LoadUint64(&m.solveCount),
		AssignmentsMade: atomic.LoadUint64(&m.assignmentCount),
		Goroutines:      runtime.NumGoroutine(),
		GeneratedAt:     time.Now().UTC(),
	}

	if ratio, ok := m.hitRatio(); ok {
		snap.CacheHitRatio = ratio
	}
	if snap.RequestsTotal > 0 {
		total := atomic.LoadUint64(&m.requestDurationTotal)
		snap.AverageRequestDurationMs = float64(total) / float64(snap.RequestsTotal) / float64(time.Millisecond)
	}
	if snap.SolveCount > 0 {
		total := atomic.LoadUint64(&m.solveDurationTotal)
		snap.AverageSolveDurationMs = float64(total) / float64(snap.SolveCount) / float64(time.Millisecond)
	}
	return snap
}

func (m *MetricsService) hitRatio() (float64, bool) {
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total == 0 {
		return 0, false
	}
	return float64(hits) / float64(total), true
}
