// Package ctxutil carries request and scan identifiers through contexts.
package ctxutil

import (
	"context"
)

// key is unexported so no other package can collide with these values.
type key int

const (
	requestIDKey key = iota
	scanIDKey
	scanDateKey
)

func str(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithRequestID tags ctx with the per-request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID reports false when no non-empty id is set.
func GetRequestID(ctx context.Context) (string, bool) {
	id := str(ctx, requestIDKey)
	return id, id != ""
}

// WithScanID tags ctx with the running scan.
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey, scanID)
}

// GetScanID returns "" outside a scan.
func GetScanID(ctx context.Context) string { return str(ctx, scanIDKey) }

// WithScanDate tags ctx with the scan's target date (YYYY-MM-DD).
func WithScanDate(ctx context.Context, date string) context.Context {
	return context.WithValue(ctx, scanDateKey, date)
}

// GetScanDate returns "" outside a scan.
func GetScanDate(ctx context.Context) string { return str(ctx, scanDateKey) }

// PreserveTracing detaches ctx from its parent's cancellation and deadline
// while keeping its values. A scan started by an HTTP request logs the
// request id but outlives the request.
func PreserveTracing(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
