package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/garyellow/osvita-occupancy/internal/ctxutil"
)

// records decodes one JSON object per line.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestContextHandler_TracingAttrs(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() context.Context
		want map[string]string
		skip []string
	}{
		{
			name: "scan started from a request",
			ctx: func() context.Context {
				ctx := ctxutil.WithRequestID(context.Background(), "req-7")
				ctx = ctxutil.WithScanID(ctx, "0190a000-0000-7000")
				return ctxutil.WithScanDate(ctx, "2024-03-11")
			},
			want: map[string]string{"request_id": "req-7", "scan_id": "0190a000-0000-7000", "scan_date": "2024-03-11"},
		},
		{
			name: "plain request",
			ctx:  func() context.Context { return ctxutil.WithRequestID(context.Background(), "req-8") },
			want: map[string]string{"request_id": "req-8"},
			skip: []string{"scan_id", "scan_date"},
		},
		{
			name: "empty values are skipped",
			ctx: func() context.Context {
				ctx := ctxutil.WithRequestID(context.Background(), "")
				return ctxutil.WithScanID(ctx, "")
			},
			skip: []string{"request_id", "scan_id", "scan_date"},
		},
		{
			name: "background context",
			ctx:  context.Background,
			skip: []string{"request_id", "scan_id", "scan_date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).InfoContext(tt.ctx(), "chunk done")

			rec := records(t, &buf)[0]
			for k, v := range tt.want {
				if rec[k] != v {
					t.Errorf("%s = %v, want %q", k, rec[k], v)
				}
			}
			for _, k := range tt.skip {
				if _, ok := rec[k]; ok {
					t.Errorf("unexpected %s = %v", k, rec[k])
				}
			}
		})
	}
}

func TestContextHandler_Enabled(t *testing.T) {
	h := NewContextHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled under a warn handler")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled under a warn handler")
	}
}

func TestContextHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = NewContextHandler(slog.NewJSONHandler(&buf, nil))
	h = h.WithAttrs([]slog.Attr{slog.String("module", "scan")})
	h = h.WithGroup("progress")

	ctx := ctxutil.WithScanID(context.Background(), "s-1")
	slog.New(h).InfoContext(ctx, "chunk done", "current", 16, "total", 120)

	rec := records(t, &buf)[0]
	if rec["module"] != "scan" {
		t.Errorf("module = %v", rec["module"])
	}
	group, ok := rec["progress"].(map[string]any)
	if !ok {
		t.Fatalf("progress group missing: %v", rec)
	}
	if group["current"] != float64(16) || group["total"] != float64(120) {
		t.Errorf("progress = %v", group)
	}
	// Context attributes are added at Handle time, inside the open group.
	if group["scan_id"] != "s-1" {
		t.Errorf("progress.scan_id = %v", group["scan_id"])
	}
}
