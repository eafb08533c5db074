package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/osvita-occupancy/internal/config"
)

// registerRoutes wires every HTTP endpoint onto router.
func (a *Application) registerRoutes(router *gin.Engine) {
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsAuthEnabled, a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	api := router.Group("/api", corsMiddleware(a.cfg.AllowedOrigin))
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.Use(a.rateLimitMiddleware(a.apiLimiter))
	admin := a.rateLimitMiddleware(a.adminLimiter)

	api.GET("/occupancy", a.getOccupancy)
	api.POST("/occupancy", admin, a.postOccupancy)
	api.GET("/occupancy/export", a.exportOccupancy)

	api.POST("/scan", admin, a.startScan)
	api.GET("/scan", a.getScan)
	api.DELETE("/scan", admin, a.cancelScan)
	api.GET("/scan/ws", a.scanStream)

	api.GET("/search", a.search)
	api.GET("/teachers/:id/lessons", a.teacherLessons)
	api.GET("/schedule/:action", a.readinessMiddleware(), a.scheduleLookup)

	api.GET("/links", a.getLinks)
	api.POST("/links", admin, a.setLink)
	api.GET("/times", a.getTimes)
	api.POST("/times", admin, a.setTimes)
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if !a.readinessState.IsReady() {
		status := a.readinessState.Status()
		a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
			WithField("timeout_seconds", status.TimeoutSeconds).
			Debug("Readiness check: warmup in progress")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": status.Reason,
			"progress": gin.H{
				"elapsed_seconds": status.ElapsedSeconds,
				"timeout_seconds": status.TimeoutSeconds,
			},
		})
		return
	}

	if err := a.store.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"store":   a.store.Backend(),
		"warmup":  a.readinessState.Status(),
		"cache":   gin.H{"entries": a.lookup.Cache().Len()},
		"scan":    a.scans.State().Phase,
		"archive": a.archiver != nil,
		"groups":  a.index.Len(),
	})
}

// readinessMiddleware rejects pass-through lookups with 503 until reference
// warmup completes.
func (a *Application) readinessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.readinessState.IsReady() {
			status := a.readinessState.Status()
			a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
				Debug("Lookup rejected: warmup in progress")
			c.Header("Retry-After", "10")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":       "service warming up",
				"retry_after": 10,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
