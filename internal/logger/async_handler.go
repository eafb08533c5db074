package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultAsyncBufferSize   = 1024
	defaultAsyncFlushTimeout = 5 * time.Second
)

// AsyncOptions configures the remote shipping queue.
type AsyncOptions struct {
	BufferSize   int
	FlushTimeout time.Duration
}

type queued struct {
	ctx     context.Context
	record  slog.Record
	handler slog.Handler
}

// shipper drains one queue for all handlers derived from an AsyncHandler.
type shipper struct {
	queue        chan queued
	flushTimeout time.Duration
	closeOnce    sync.Once
	mu           sync.RWMutex // guards sends against close
	closed       bool
	drained      chan struct{}
	dropped      atomic.Uint64
}

func newShipper(opts AsyncOptions) *shipper {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultAsyncBufferSize
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultAsyncFlushTimeout
	}
	s := &shipper{
		queue:        make(chan queued, opts.BufferSize),
		flushTimeout: opts.FlushTimeout,
		drained:      make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *shipper) drain() {
	defer close(s.drained)
	for q := range s.queue {
		_ = q.handler.Handle(q.ctx, q.record)
	}
}

// push never blocks. A full queue drops the record.
func (s *shipper) push(q queued) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- q:
	default:
		s.dropped.Add(1)
	}
}

func (s *shipper) stop(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.flushTimeout)
		defer cancel()
	}
	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsyncHandler queues records for a slow handler so that request and scan
// paths never wait on remote log shipping.
type AsyncHandler struct {
	shipper *shipper
	handler slog.Handler
}

// NewAsyncHandler starts the queue worker for handler.
func NewAsyncHandler(handler slog.Handler, opts AsyncOptions) *AsyncHandler {
	return &AsyncHandler{shipper: newShipper(opts), handler: handler}
}

// Enabled implements slog.Handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle queues a clone of r. The context keeps its values but not its
// cancellation, since the request has usually ended by the time the record
// is shipped.
func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.handler.Enabled(ctx, r.Level) {
		h.shipper.push(queued{ctx: context.WithoutCancel(ctx), record: r.Clone(), handler: h.handler})
	}
	return nil
}

// WithAttrs implements slog.Handler. The derived handler shares the queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{shipper: h.shipper, handler: h.handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler. The derived handler shares the queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{shipper: h.shipper, handler: h.handler.WithGroup(name)}
}

// Dropped returns the number of records lost to a full or closed queue.
func (h *AsyncHandler) Dropped() uint64 {
	if h == nil || h.shipper == nil {
		return 0
	}
	return h.shipper.dropped.Load()
}

// Shutdown stops accepting records and waits for the queue to drain, up to
// the flush timeout when ctx has no deadline.
func (h *AsyncHandler) Shutdown(ctx context.Context) error {
	if h == nil || h.shipper == nil {
		return nil
	}
	return h.shipper.stop(ctx)
}
