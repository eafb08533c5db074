package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// blockingHandler holds every Handle call until release is closed.
type blockingHandler struct {
	slog.Handler
	release chan struct{}
}

func (h *blockingHandler) Handle(ctx context.Context, r slog.Record) error {
	<-h.release
	return h.Handler.Handle(ctx, r)
}

func TestAsyncHandler_ShutdownFlushes(t *testing.T) {
	t.Parallel()

	var out lockedBuffer
	h := NewAsyncHandler(slog.NewJSONHandler(&out, nil), AsyncOptions{BufferSize: 16})
	log := slog.New(h).With("scan_id", "s-1")

	for i := range 5 {
		log.Info("chunk done", "chunk", i)
	}
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	got := out.String()
	if n := strings.Count(got, "chunk done"); n != 5 {
		t.Errorf("flushed %d records, want 5", n)
	}
	if !strings.Contains(got, `"scan_id":"s-1"`) {
		t.Errorf("derived attrs missing: %s", got)
	}
	if h.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", h.Dropped())
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var out lockedBuffer
	h := NewAsyncHandler(&blockingHandler{Handler: slog.NewJSONHandler(&out, nil), release: release},
		AsyncOptions{BufferSize: 1})
	log := slog.New(h)

	// One record may sit in the worker and one in the queue; the rest drop.
	for range 10 {
		log.Info("burst")
	}
	if h.Dropped() < 8 {
		t.Errorf("Dropped() = %d, want at least 8", h.Dropped())
	}

	close(release)
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestAsyncHandler_AfterShutdown(t *testing.T) {
	t.Parallel()

	var out lockedBuffer
	h := NewAsyncHandler(slog.NewJSONHandler(&out, nil), AsyncOptions{})
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}

	slog.New(h).Info("late")
	if h.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", h.Dropped())
	}
	if strings.Contains(out.String(), "late") {
		t.Error("record written after shutdown")
	}
}

func TestAsyncHandler_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	h := NewAsyncHandler(&blockingHandler{Handler: slog.NewJSONHandler(&lockedBuffer{}, nil), release: release},
		AsyncOptions{FlushTimeout: 20 * time.Millisecond})
	slog.New(h).Info("stuck")

	if err := h.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown() should time out while the handler is blocked")
	}
}

func TestAsyncHandler_NilSafe(t *testing.T) {
	t.Parallel()

	var h *AsyncHandler
	if err := h.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown() error = %v", err)
	}
	if h.Dropped() != 0 {
		t.Error("nil Dropped() should be 0")
	}
}
