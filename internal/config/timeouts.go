// Package config provides centralized timeout constants for the application.
//
// The upstream scheduling API answers one group or teacher per request and
// slows down noticeably under bursts, so scans pace themselves with fixed
// delays between chunks instead of relying on server-side throttling.
package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the HTTP server read timeout.
	HTTPRead = 10 * time.Second

	// HTTPWrite is the HTTP server write timeout.
	// Covers spreadsheet export of a full grid.
	HTTPWrite = 60 * time.Second

	// HTTPIdle is the HTTP server idle timeout for keep-alive connections.
	HTTPIdle = 120 * time.Second

	// ReadinessCheckTimeout bounds the store ping of /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Upstream timeouts
const (
	// UpstreamRequest bounds a single upstream call. A timed-out call counts
	// as one failed entity during a scan.
	UpstreamRequest = 10 * time.Second

	// UpstreamRetryInitial is the first backoff delay; it doubles per attempt.
	UpstreamRetryInitial = 500 * time.Millisecond

	// UpstreamRetryMax caps a single backoff delay.
	UpstreamRetryMax = 4 * time.Second
)

// Scan pacing
const (
	// DiscoveryChunkDelay is the pause between discovery chunks.
	DiscoveryChunkDelay = 50 * time.Millisecond

	// FetchChunkDelay is the pause between schedule fetch chunks.
	FetchChunkDelay = 150 * time.Millisecond

	// DiscoveryChunkSize is the number of faculty/form/course tasks run in parallel.
	DiscoveryChunkSize = 5

	// FetchChunkSize is the number of entity schedules fetched in parallel.
	FetchChunkSize = 8
)

// Cache and storage lifetimes
const (
	// ScheduleCacheTTL applies to schedule lookups, which change during the day.
	ScheduleCacheTTL = 10 * time.Minute

	// ReferenceCacheTTL applies to faculties, forms, courses and chairs.
	ReferenceCacheTTL = 24 * time.Hour

	// OccupancyResultTTL is how long a stored occupancy grid stays readable.
	OccupancyResultTTL = time.Hour
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// ResultCleanupInterval is how often expired occupancy results are deleted.
	ResultCleanupInterval = 30 * time.Minute

	// MetricsUpdateInterval is how often cache size gauges are refreshed.
	MetricsUpdateInterval = time.Minute

	// WarmupGracePeriod is how long readiness waits for reference warmup
	// before reporting ready anyway.
	WarmupGracePeriod = 2 * time.Minute
)

// WebSocket timeouts
const (
	// WSWriteWait is the time allowed to write a message to the peer.
	WSWriteWait = 10 * time.Second

	// WSPongWait is the time allowed to read the next pong from the peer.
	WSPongWait = 60 * time.Second

	// WSPingPeriod must be less than WSPongWait.
	WSPingPeriod = (WSPongWait * 9) / 10
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
