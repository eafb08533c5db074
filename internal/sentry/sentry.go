// Package sentry wraps the Sentry Go SDK: initialization from config and
// capture helpers that carry scan and request identifiers as tags.
package sentry

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/garyellow/osvita-occupancy/internal/ctxutil"
)

// Config holds Sentry configuration.
type Config struct {
	// DSN is the project DSN. Empty disables Sentry.
	DSN string

	// Environment identifies the deployment environment (e.g., "production", "staging").
	Environment string

	// Release identifies the application release version.
	Release string

	// SampleRate controls error sampling (0.0-1.0, default 1.0 = 100%).
	SampleRate float64

	// TracesSampleRate enables performance tracing when > 0.
	TracesSampleRate float64

	// ServerName tags events with the instance name.
	ServerName string

	Debug bool
}

// Initialize sets up the Sentry SDK. An empty DSN leaves Sentry disabled
// and returns nil.
func Initialize(cfg Config) error {
	if cfg.DSN == "" {
		return nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 || cfg.TracesSampleRate < 0 || cfg.TracesSampleRate > 1 {
		return errors.New("sentry sample rates must be between 0 and 1")
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       sampleRate,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events to be sent to the server.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException captures an error with the hub bound to ctx, tagging it
// with the scan and request identifiers found there.
func CaptureException(ctx context.Context, err error) {
	if err == nil || !IsEnabled() {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags(ctx) {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// CaptureMessage captures a message and sends it to Sentry.
func CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}

func tags(ctx context.Context) map[string]string {
	out := make(map[string]string, 3)
	if id := ctxutil.GetScanID(ctx); id != "" {
		out["scan_id"] = id
	}
	if d := ctxutil.GetScanDate(ctx); d != "" {
		out["scan_date"] = d
	}
	if id, ok := ctxutil.GetRequestID(ctx); ok {
		out["request_id"] = id
	}
	return out
}
