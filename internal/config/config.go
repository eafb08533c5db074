// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, one-shot scan mode, timeouts, and cache settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings are required.
type ValidationMode int

const (
	// ServerMode runs the HTTP API; the admin secret is required.
	ServerMode ValidationMode = iota
	// ScanMode runs a single scan from the command line.
	ScanMode
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DefaultUpstreamBaseURL is the public Osvita schedule widget endpoint.
const DefaultUpstreamBaseURL = "http://vnz.osvita.net/WidgetSchedule.asmx"

// DefaultVuzID identifies the institution in every upstream request.
const DefaultVuzID = 11927

// Config holds all application configuration
type Config struct {
	// Server
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	ServerName      string
	InstanceID      string
	AllowedOrigin   string // Access-Control-Allow-Origin for /api (default "*")
	AdminSecret     string // Shared secret for occupancy writes, scans and admin KV

	// Storage
	DataDir        string
	StorageBackend string
	Redis          RedisConfig
	ResultTTL      time.Duration

	Upstream  UpstreamConfig
	Cache     CacheConfig
	Scan      ScanConfig
	RateLimit RateLimitConfig

	WarmupGracePeriod time.Duration
	CleanupInterval   time.Duration

	// Metrics Authentication
	MetricsAuthEnabled bool
	MetricsUsername    string
	MetricsPassword    string

	R2          R2Config
	Sentry      SentryConfig
	BetterStack BetterStackConfig
}

// RedisConfig holds the optional Redis store connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// UpstreamConfig controls the scheduling API client.
type UpstreamConfig struct {
	BaseURL    string
	VuzID      int
	Timeout    time.Duration
	MaxRetries int
	RPS        float64 // 0 disables client-side rate limiting
	Burst      int
}

// CacheConfig controls the in-process response cache.
type CacheConfig struct {
	Capacity     int
	ScheduleTTL  time.Duration
	ReferenceTTL time.Duration
}

// ScanConfig controls chunking and pacing of a scan.
type ScanConfig struct {
	DiscoveryChunkSize  int
	DiscoveryChunkDelay time.Duration
	FetchChunkSize      int
	FetchChunkDelay     time.Duration
}

// RateLimitConfig holds per-client API limits. Zero rates disable a limiter.
type RateLimitConfig struct {
	APIRPS         float64
	APIBurst       int
	AdminPerMinute float64
}

// R2Config holds Cloudflare R2 credentials for scan archives.
type R2Config struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	ArchivePrefix   string
}

// SentryConfig holds error tracking settings.
type SentryConfig struct {
	Enabled          bool
	DSN              string
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
}

// BetterStackConfig holds remote log shipping settings.
type BetterStackConfig struct {
	Enabled  bool
	Token    string
	Endpoint string
}

// Load reads configuration for server mode.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration from the environment (and an optional
// .env file) and validates it for the given mode.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		ServerName:      getEnv(EnvServerName, ""),
		InstanceID:      getEnv(EnvInstanceID, ""),
		AllowedOrigin:   getEnv(EnvAllowedOrigin, "*"),
		AdminSecret:     getEnv(EnvAdminSecret, ""),

		DataDir:        getEnv(EnvDataDir, getDefaultDataDir()),
		StorageBackend: strings.ToLower(getEnv(EnvStorageBackend, BackendSQLite)),
		Redis: RedisConfig{
			Addr:     getEnv(EnvRedisAddr, "localhost:6379"),
			Password: getEnv(EnvRedisPassword, ""),
			DB:       getIntEnv(EnvRedisDB, 0),
		},
		ResultTTL: getDurationEnv(EnvResultTTL, OccupancyResultTTL),

		Upstream: UpstreamConfig{
			BaseURL:    strings.TrimRight(getEnv(EnvUpstreamBaseURL, DefaultUpstreamBaseURL), "/"),
			VuzID:      getIntEnv(EnvUpstreamVuzID, DefaultVuzID),
			Timeout:    getDurationEnv(EnvUpstreamTimeout, UpstreamRequest),
			MaxRetries: getIntEnv(EnvUpstreamMaxRetries, 1),
			RPS:        getFloatEnv(EnvUpstreamRPS, 0),
			Burst:      getIntEnv(EnvUpstreamBurst, 16),
		},
		Cache: CacheConfig{
			Capacity:     getIntEnv(EnvCacheCapacity, 2000),
			ScheduleTTL:  getDurationEnv(EnvCacheScheduleTTL, ScheduleCacheTTL),
			ReferenceTTL: getDurationEnv(EnvCacheReferenceTTL, ReferenceCacheTTL),
		},
		Scan: ScanConfig{
			DiscoveryChunkSize:  getIntEnv(EnvDiscoveryChunkSize, DiscoveryChunkSize),
			DiscoveryChunkDelay: getDurationEnv(EnvDiscoveryChunkDelay, DiscoveryChunkDelay),
			FetchChunkSize:      getIntEnv(EnvFetchChunkSize, FetchChunkSize),
			FetchChunkDelay:     getDurationEnv(EnvFetchChunkDelay, FetchChunkDelay),
		},
		RateLimit: RateLimitConfig{
			APIRPS:         getFloatEnv(EnvAPIRateLimitRPS, 5),
			APIBurst:       getIntEnv(EnvAPIRateLimitBurst, 30),
			AdminPerMinute: getFloatEnv(EnvAdminRateLimitPerMin, 10),
		},

		WarmupGracePeriod: getDurationEnv(EnvWarmupGracePeriod, WarmupGracePeriod),
		CleanupInterval:   getDurationEnv(EnvCleanupInterval, ResultCleanupInterval),

		MetricsAuthEnabled: getBoolEnv(EnvMetricsAuthEnabled, false),
		MetricsUsername:    getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:    getEnv(EnvMetricsPassword, ""),

		R2: R2Config{
			Enabled:         getBoolEnv(EnvR2Enabled, false),
			AccountID:       getEnv(EnvR2AccountID, ""),
			AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
			BucketName:      getEnv(EnvR2BucketName, ""),
			ArchivePrefix:   strings.Trim(getEnv(EnvR2ArchivePrefix, "occupancy"), "/"),
		},
		Sentry: SentryConfig{
			Enabled:          getBoolEnv(EnvSentryEnabled, false),
			DSN:              getEnv(EnvSentryDSN, ""),
			Environment:      getEnv(EnvSentryEnvironment, "production"),
			Release:          getEnv(EnvSentryRelease, ""),
			SampleRate:       getFloatEnv(EnvSentrySampleRate, 1.0),
			TracesSampleRate: getFloatEnv(EnvSentryTracesSampleRate, 0),
		},
		BetterStack: BetterStackConfig{
			Enabled:  getBoolEnv(EnvBetterStackEnabled, false),
			Token:    getEnv(EnvBetterStackToken, ""),
			Endpoint: getEnv(EnvBetterStackEndpoint, ""),
		},
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode checks if required configuration values are set
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if mode == ServerMode {
		if c.Port == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvPort))
		}
		if c.AdminSecret == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvAdminSecret))
		}
		if c.MetricsAuthEnabled && c.MetricsPassword == "" {
			errs = append(errs, fmt.Errorf("%s is required when metrics auth is enabled", EnvMetricsPassword))
		}
	}

	switch c.StorageBackend {
	case BackendSQLite:
		if c.DataDir == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%s is required for the redis backend", EnvRedisAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvStorageBackend, BackendSQLite, BackendRedis, c.StorageBackend))
	}

	if c.ResultTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvResultTTL, c.ResultTTL))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvUpstreamBaseURL))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvUpstreamTimeout, c.Upstream.Timeout))
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvUpstreamMaxRetries, c.Upstream.MaxRetries))
	}
	if c.Upstream.RPS < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvUpstreamRPS, c.Upstream.RPS))
	}
	if c.RateLimit.APIRPS < 0 || c.RateLimit.AdminPerMinute < 0 {
		errs = append(errs, errors.New("API rate limits cannot be negative"))
	}
	if c.RateLimit.APIRPS > 0 && c.RateLimit.APIBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive when %s is set", EnvAPIRateLimitBurst, EnvAPIRateLimitRPS))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvCacheCapacity, c.Cache.Capacity))
	}
	if c.Cache.ScheduleTTL <= 0 || c.Cache.ReferenceTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Scan.DiscoveryChunkSize <= 0 || c.Scan.FetchChunkSize <= 0 {
		errs = append(errs, errors.New("scan chunk sizes must be positive"))
	}
	if c.Scan.DiscoveryChunkDelay < 0 || c.Scan.FetchChunkDelay < 0 {
		errs = append(errs, errors.New("scan chunk delays cannot be negative"))
	}

	if c.R2.Enabled {
		if c.R2.AccountID == "" || c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" || c.R2.BucketName == "" {
			errs = append(errs, errors.New("R2 archive enabled but credentials or bucket are missing"))
		}
	}
	if c.Sentry.Enabled && c.Sentry.DSN == "" {
		errs = append(errs, fmt.Errorf("%s is required when Sentry is enabled", EnvSentryDSN))
	}
	if c.BetterStack.Enabled && c.BetterStack.Token == "" {
		errs = append(errs, fmt.Errorf("%s is required when Better Stack is enabled", EnvBetterStackToken))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "occupancy.db")
}

// BetterStackActive reports whether remote log shipping should be wired.
func (c *Config) BetterStackActive() bool {
	return c.BetterStack.Enabled && c.BetterStack.Token != ""
}
