// Package metrics defines the Prometheus metrics exported on /metrics.
// Record methods are safe to call on a nil *Metrics so that tests and the
// scan CLI can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamDurationSeconds *prometheus.HistogramVec

	// Response cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal prometheus.Counter
	CacheEntries        prometheus.Gauge

	// Rate limiter metrics
	RateLimiterWaitDuration *prometheus.HistogramVec
	RateLimitedTotal        *prometheus.CounterVec
	RateLimiterClients      *prometheus.GaugeVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec

	// Scan metrics
	ScansTotal             *prometheus.CounterVec
	ScanDurationSeconds    prometheus.Histogram
	ScanActive             prometheus.Gauge
	EntitiesDiscovered     prometheus.Gauge
	EntityFetchErrorsTotal prometheus.Counter
	RoomsOccupied          prometheus.Gauge

	// Storage and archive metrics
	StoreOperationsTotal *prometheus.CounterVec
	ArchiveUploadsTotal  *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Warmup metrics
	WarmupTasksTotal *prometheus.CounterVec
	WarmupDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	m := &Metrics{
		UpstreamRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_upstream_requests_total",
				Help: "Total number of upstream API requests by action and status",
			},
			[]string{"action", "status"}, // status: success, error, timeout, http_<code>
		),

		UpstreamDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "osvita_upstream_duration_seconds",
				Help:    "Upstream API request duration in seconds by action",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}, // Matches 10s timeout
			},
			[]string{"action"},
		),

		CacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_cache_hits_total",
				Help: "Total number of response cache hits by category",
			},
			[]string{"category"}, // category: schedule, reference
		),

		CacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_cache_misses_total",
				Help: "Total number of response cache misses by category",
			},
			[]string{"category"},
		),

		CacheEvictionsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "osvita_cache_evictions_total",
				Help: "Entries evicted from the response cache to stay within capacity",
			},
		),

		CacheEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "osvita_cache_entries",
				Help: "Current number of entries in the response cache",
			},
		),

		RateLimiterWaitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "osvita_rate_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for rate limiter token by limiter type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5}, // 1ms to 5s
			},
			[]string{"limiter_type"},
		),

		RateLimitedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_api_rate_limited_total",
				Help: "API requests rejected by a per-client limiter",
			},
			[]string{"limiter"}, // limiter: api, admin
		),

		RateLimiterClients: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "osvita_api_rate_limiter_clients",
				Help: "Clients currently tracked by a per-client limiter",
			},
			[]string{"limiter"},
		),

		SingleflightDedupTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_singleflight_dedup_total",
				Help: "Total number of upstream calls that joined an identical in-flight call",
			},
			[]string{"action"},
		),

		ScansTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_scans_total",
				Help: "Total number of occupancy scans by outcome",
			},
			[]string{"outcome"}, // outcome: completed, cancelled, failed
		),

		ScanDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "osvita_scan_duration_seconds",
				Help:    "Duration of occupancy scans",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200}, // 5s to 20min
			},
		),

		ScanActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "osvita_scan_active",
				Help: "1 while a scan is running",
			},
		),

		EntitiesDiscovered: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "osvita_scan_entities_discovered",
				Help: "Distinct entities discovered by the most recent scan",
			},
		),

		EntityFetchErrorsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "osvita_scan_entity_fetch_errors_total",
				Help: "Per-entity schedule fetches that failed during scans",
			},
		),

		RoomsOccupied: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "osvita_scan_rooms_occupied",
				Help: "Rooms with at least one occupied slot in the most recent scan",
			},
		),

		StoreOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_store_operations_total",
				Help: "Result store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),

		ArchiveUploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_archive_uploads_total",
				Help: "Scan archive uploads to object storage by status",
			},
			[]string{"status"},
		),

		HTTPErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"},
		),

		WarmupTasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osvita_warmup_tasks_total",
				Help: "Total number of warmup tasks by module and status",
			},
			[]string{"module", "status"}, // status: success, error
		),

		WarmupDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "osvita_warmup_duration_seconds",
				Help:    "Total duration of reference data warmup",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60}, // 500ms to 1min
			},
		),
	}

	return m
}

// RecordUpstreamRequest records an upstream request with status
func (m *Metrics) RecordUpstreamRequest(action, status string, duration float64) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(action, status).Inc()
	m.UpstreamDurationSeconds.WithLabelValues(action).Observe(duration)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(category string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(category).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(category string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(category).Inc()
}

// RecordCacheEviction records an insertion-order eviction
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.CacheEvictionsTotal.Inc()
}

// SetCacheEntries updates the cache size gauge
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// RecordRateLimiterWait records time spent waiting for rate limiter
func (m *Metrics) RecordRateLimiterWait(limiterType string, duration float64) {
	if m == nil {
		return
	}
	m.RateLimiterWaitDuration.WithLabelValues(limiterType).Observe(duration)
}

// RecordRateLimited counts a request rejected by limiter
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// SetRateLimiterClients sets the number of clients tracked by limiter
func (m *Metrics) SetRateLimiterClients(limiter string, n int) {
	if m == nil {
		return
	}
	m.RateLimiterClients.WithLabelValues(limiter).Set(float64(n))
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(action string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(action).Inc()
}

// RecordScanStarted marks a scan as active
func (m *Metrics) RecordScanStarted() {
	if m == nil {
		return
	}
	m.ScanActive.Set(1)
}

// RecordScanFinished records the outcome and duration of a scan
func (m *Metrics) RecordScanFinished(outcome string, duration float64, rooms int) {
	if m == nil {
		return
	}
	m.ScanActive.Set(0)
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDurationSeconds.Observe(duration)
	m.RoomsOccupied.Set(float64(rooms))
}

// RecordEntitiesDiscovered records the directory size of the current scan
func (m *Metrics) RecordEntitiesDiscovered(n int) {
	if m == nil {
		return
	}
	m.EntitiesDiscovered.Set(float64(n))
}

// RecordEntityFetchErrors adds failed entity fetches
func (m *Metrics) RecordEntityFetchErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntityFetchErrorsTotal.Add(float64(n))
}

// RecordStoreOperation records a result store call
func (m *Metrics) RecordStoreOperation(backend, operation, status string) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordArchiveUpload records a scan archive upload
func (m *Metrics) RecordArchiveUpload(status string) {
	if m == nil {
		return
	}
	m.ArchiveUploadsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordWarmupTask records a warmup task completion
func (m *Metrics) RecordWarmupTask(module, status string) {
	if m == nil {
		return
	}
	m.WarmupTasksTotal.WithLabelValues(module, status).Inc()
}

// RecordWarmupDuration records total warmup duration
func (m *Metrics) RecordWarmupDuration(duration float64) {
	if m == nil {
		return
	}
	m.WarmupDuration.Observe(duration)
}
