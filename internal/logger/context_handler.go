package logger

import (
	"context"
	"log/slog"

	"github.com/garyellow/osvita-occupancy/internal/ctxutil"
)

// tracingAttrs are copied from the context onto every record.
var tracingAttrs = []struct {
	key string
	get func(context.Context) string
}{
	{"request_id", func(ctx context.Context) string { id, _ := ctxutil.GetRequestID(ctx); return id }},
	{"scan_id", ctxutil.GetScanID},
	{"scan_date", ctxutil.GetScanDate},
}

// ContextHandler adds request and scan identifiers found in the context.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler wraps handler.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler. Empty values are skipped.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range tracingAttrs {
		if v := a.get(ctx); v != "" {
			r.AddAttrs(slog.String(a.key, v))
		}
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}
