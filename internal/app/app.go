// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/garyellow/osvita-occupancy/internal/buildinfo"
	"github.com/garyellow/osvita-occupancy/internal/config"
	"github.com/garyellow/osvita-occupancy/internal/directory"
	"github.com/garyellow/osvita-occupancy/internal/logger"
	"github.com/garyellow/osvita-occupancy/internal/lookup"
	"github.com/garyellow/osvita-occupancy/internal/metrics"
	"github.com/garyellow/osvita-occupancy/internal/occupancy"
	"github.com/garyellow/osvita-occupancy/internal/r2client"
	"github.com/garyellow/osvita-occupancy/internal/ratelimit"
	"github.com/garyellow/osvita-occupancy/internal/respcache"
	"github.com/garyellow/osvita-occupancy/internal/scan"
	"github.com/garyellow/osvita-occupancy/internal/sentry"
	"github.com/garyellow/osvita-occupancy/internal/snapshot"
	"github.com/garyellow/osvita-occupancy/internal/storage"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
	"github.com/garyellow/osvita-occupancy/internal/warmup"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	store          storage.Store
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	upstream       *upstream.Client
	lookup         *lookup.Service
	scans          *scan.Controller
	archiver       *snapshot.Archiver // nil when R2 is disabled
	index          *directory.Index
	apiLimiter     *ratelimit.KeyedLimiter // nil when disabled
	adminLimiter   *ratelimit.KeyedLimiter // nil when disabled
	server         *http.Server
	readinessState *warmup.ReadinessState // Tracks initial warmup completion for readiness
	wg             sync.WaitGroup         // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	var logOpts logger.Options
	if cfg.BetterStackActive() {
		logOpts.BetterStackToken = cfg.BetterStack.Token
		logOpts.BetterStackEndpoint = cfg.BetterStack.Endpoint
	}
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logOpts)

	log = log.WithField("service", "osvita-occupancy")
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}
	if instanceID != "" {
		log = log.WithField("instance_id", instanceID)
	}

	// Set as default logger so package-level slog.*Context() calls carry
	// request and scan ids.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Version).Info("Initializing application...")
	if cfg.BetterStackActive() {
		log.WithField("endpoint", cfg.BetterStack.Endpoint).Info("Better Stack logging enabled")
	}

	if cfg.Sentry.Enabled {
		release := cfg.Sentry.Release
		if release == "" {
			release = buildinfo.Version
		}
		if err := sentry.Initialize(sentry.Config{
			DSN:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          release,
			SampleRate:       cfg.Sentry.SampleRate,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
			ServerName:       cfg.ServerName,
		}); err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		log.WithField("environment", cfg.Sentry.Environment).Info("Sentry error tracking enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	store, err := storage.Open(ctx, cfg, m)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.WithField("backend", store.Backend()).
		WithField("result_ttl", cfg.ResultTTL).
		Info("Result store connected")

	var archiver *snapshot.Archiver
	if cfg.R2.Enabled {
		r2, err := r2client.New(ctx, r2client.Config{
			Endpoint:    r2client.EndpointForAccount(cfg.R2.AccountID),
			AccessKeyID: cfg.R2.AccessKeyID,
			SecretKey:   cfg.R2.SecretAccessKey,
			BucketName:  cfg.R2.BucketName,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("r2 archive: %w", err)
		}
		archiver = snapshot.NewArchiver(r2, cfg.R2.ArchivePrefix, m)
		log.WithField("bucket", cfg.R2.BucketName).
			WithField("prefix", cfg.R2.ArchivePrefix).
			Info("Scan archive enabled")
	}

	up := upstream.NewClient(upstream.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		VuzID:      cfg.Upstream.VuzID,
		Timeout:    cfg.Upstream.Timeout,
		MaxRetries: cfg.Upstream.MaxRetries,
		RPS:        cfg.Upstream.RPS,
		Burst:      cfg.Upstream.Burst,
		Metrics:    m,
	})
	cache := respcache.New(respcache.Options{
		Capacity:     cfg.Cache.Capacity,
		ScheduleTTL:  cfg.Cache.ScheduleTTL,
		ReferenceTTL: cfg.Cache.ReferenceTTL,
		Metrics:      m,
	})
	lk := lookup.New(up, respcache.NewFetcher(cache))
	index := directory.NewIndex()

	scanOpts := scan.Options{
		Sink:         store,
		ResultTTL:    cfg.ResultTTL,
		Metrics:      m,
		Logger:       log,
		OnFailure:    sentry.CaptureException,
		OnDiscovered: index.Replace,
	}
	if archiver != nil {
		scanOpts.Archiver = archiver
	}
	controller := scan.NewController(lk,
		directory.NewBuilder(up, cfg.Scan.DiscoveryChunkSize, cfg.Scan.DiscoveryChunkDelay),
		occupancy.NewEngine(up, occupancy.EngineOptions{
			ChunkSize:   cfg.Scan.FetchChunkSize,
			Delay:       cfg.Scan.FetchChunkDelay,
			CallTimeout: cfg.Upstream.Timeout,
			Metrics:     m,
		}),
		scanOpts)

	app := &Application{
		cfg:            cfg,
		logger:         log,
		store:          store,
		metrics:        m,
		registry:       registry,
		upstream:       up,
		lookup:         lk,
		scans:          controller,
		archiver:       archiver,
		index:          index,
		readinessState: warmup.NewReadinessState(cfg.WarmupGracePeriod),
	}
	if cfg.RateLimit.APIRPS > 0 {
		app.apiLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
			Name:       "api",
			Burst:      cfg.RateLimit.APIBurst,
			RefillRate: cfg.RateLimit.APIRPS,
			Metrics:    m,
		})
	}
	if cfg.RateLimit.AdminPerMinute > 0 {
		app.adminLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
			Name:       "admin",
			Burst:      max(1, int(cfg.RateLimit.AdminPerMinute/2)),
			RefillRate: cfg.RateLimit.AdminPerMinute / 60,
			Metrics:    m,
		})
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(log))
	app.registerRoutes(router)

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// Run starts the HTTP server and background jobs.
//
// Shutdown order:
//  1. Receive SIGINT/SIGTERM
//  2. Cancel background jobs and wait for them
//  3. Stop the HTTP server, then the running scan, then close the store
//
// The store is closed last so a scan aborted by shutdown can still save
// its partial result.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		warmup.RunInBackground(ctx, a.lookup, a.readinessState, a.logger, warmup.Options{
			Metrics:    a.metrics,
			OnTeachers: a.index.ReplaceTeachers,
		})
	})
	a.wg.Go(func() {
		a.resultCleanup(ctx)
	})
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops the HTTP server and the running scan, then closes resources.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Stopping running scan...")
	if err := a.scans.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Scan did not stop in time")
	}

	a.logger.Info("Closing resources...")
	for _, kl := range []*ratelimit.KeyedLimiter{a.apiLimiter, a.adminLimiter} {
		if kl != nil {
			kl.Stop()
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "store").Error("Component close error")
	}

	sentry.Flush(5 * time.Second)

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

// resultCleanup deletes expired occupancy results every CleanupInterval.
func (a *Application) resultCleanup(ctx context.Context) {
	a.logger.Debug("Result cleanup job started")
	defer a.logger.Debug("Result cleanup job stopped")

	interval := a.cfg.CleanupInterval
	if interval <= 0 {
		interval = config.ResultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Result cleanup received shutdown signal")
			return
		case <-ticker.C:
			a.runResultCleanup(ctx)
		}
	}
}

func (a *Application) runResultCleanup(ctx context.Context) {
	start := time.Now()
	deleted, err := a.store.DeleteExpired(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to delete expired results")
		return
	}
	entry := a.logger.WithField("deleted", deleted).
		WithField("duration_ms", time.Since(start).Milliseconds())
	if deleted > 0 {
		entry.Info("Expired results deleted")
	} else {
		entry.Debug("No expired results")
	}
}
