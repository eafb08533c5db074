// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "OSVITA_PORT"
	EnvLogLevel        = "OSVITA_LOG_LEVEL"
	EnvShutdownTimeout = "OSVITA_SHUTDOWN_TIMEOUT"
	EnvServerName      = "OSVITA_SERVER_NAME"
	EnvInstanceID      = "OSVITA_INSTANCE_ID"
	EnvAllowedOrigin   = "OSVITA_ALLOWED_ORIGIN"
	EnvAdminSecret     = "OSVITA_ADMIN_SECRET"

	// Per-client API limits
	EnvAPIRateLimitRPS      = "OSVITA_API_RATE_LIMIT_RPS"
	EnvAPIRateLimitBurst    = "OSVITA_API_RATE_LIMIT_BURST"
	EnvAdminRateLimitPerMin = "OSVITA_ADMIN_RATE_LIMIT_PER_MINUTE"

	// Storage
	EnvDataDir        = "OSVITA_DATA_DIR"
	EnvStorageBackend = "OSVITA_STORAGE_BACKEND"
	EnvRedisAddr      = "OSVITA_REDIS_ADDR"
	EnvRedisPassword  = "OSVITA_REDIS_PASSWORD"
	EnvRedisDB        = "OSVITA_REDIS_DB"
	EnvResultTTL      = "OSVITA_RESULT_TTL"

	// Upstream
	EnvUpstreamBaseURL    = "OSVITA_UPSTREAM_BASE_URL"
	EnvUpstreamVuzID      = "OSVITA_UPSTREAM_VUZ_ID"
	EnvUpstreamTimeout    = "OSVITA_UPSTREAM_TIMEOUT"
	EnvUpstreamMaxRetries = "OSVITA_UPSTREAM_MAX_RETRIES"
	EnvUpstreamRPS        = "OSVITA_UPSTREAM_RPS"
	EnvUpstreamBurst      = "OSVITA_UPSTREAM_BURST"

	// Response cache
	EnvCacheCapacity     = "OSVITA_CACHE_CAPACITY"
	EnvCacheScheduleTTL  = "OSVITA_CACHE_SCHEDULE_TTL"
	EnvCacheReferenceTTL = "OSVITA_CACHE_REFERENCE_TTL"

	// Scan
	EnvDiscoveryChunkSize  = "OSVITA_DISCOVERY_CHUNK_SIZE"
	EnvDiscoveryChunkDelay = "OSVITA_DISCOVERY_CHUNK_DELAY"
	EnvFetchChunkSize      = "OSVITA_FETCH_CHUNK_SIZE"
	EnvFetchChunkDelay     = "OSVITA_FETCH_CHUNK_DELAY"

	// Background Tasks
	EnvWarmupGracePeriod = "OSVITA_WARMUP_GRACE_PERIOD"
	EnvCleanupInterval   = "OSVITA_CLEANUP_INTERVAL"

	// R2 Archive Feature
	EnvR2Enabled         = "OSVITA_R2_ENABLED"
	EnvR2AccountID       = "OSVITA_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "OSVITA_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "OSVITA_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "OSVITA_R2_BUCKET_NAME"
	EnvR2ArchivePrefix   = "OSVITA_R2_ARCHIVE_PREFIX"

	// Sentry Feature
	EnvSentryEnabled          = "OSVITA_SENTRY_ENABLED"
	EnvSentryDSN              = "OSVITA_SENTRY_DSN"
	EnvSentryEnvironment      = "OSVITA_SENTRY_ENVIRONMENT"
	EnvSentryRelease          = "OSVITA_SENTRY_RELEASE"
	EnvSentrySampleRate       = "OSVITA_SENTRY_SAMPLE_RATE"
	EnvSentryTracesSampleRate = "OSVITA_SENTRY_TRACES_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackEnabled  = "OSVITA_BETTERSTACK_ENABLED"
	EnvBetterStackToken    = "OSVITA_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "OSVITA_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsAuthEnabled = "OSVITA_METRICS_AUTH_ENABLED"
	EnvMetricsUsername    = "OSVITA_METRICS_USERNAME"
	EnvMetricsPassword    = "OSVITA_METRICS_PASSWORD"
)
