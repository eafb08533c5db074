// Package logger provides structured logging utilities for the service.
// It wraps log/slog with JSON formatting, attaches request and scan
// identifiers from the context, and optionally ships records to Better Stack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogbetterstack "github.com/samber/slog-betterstack"
)

// Logger is the application logger
type Logger struct {
	*slog.Logger
	level    *slog.LevelVar
	out      *switchWriter
	shutdown func(context.Context) error
}

// Options configures optional remote log shipping.
type Options struct {
	BetterStackToken    string
	BetterStackEndpoint string
	Async               AsyncOptions
}

// switchWriter lets tests redirect output after construction.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// New creates a new logger instance with JSON formatting
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a new logger writing JSON to w.
func NewWithWriter(level string, w io.Writer) *Logger {
	return NewWithOptions(level, w, Options{})
}

// NewWithOptions creates a logger writing JSON to w and, when a Better Stack
// token is set, also to Better Stack through an async pipeline.
func NewWithOptions(level string, w io.Writer, opts Options) *Logger {
	lv := &slog.LevelVar{}
	lv.Set(parseLevel(level))

	out := &switchWriter{w: w}
	local := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       lv,
		ReplaceAttr: replaceAttr,
	})

	var handler slog.Handler = local
	shutdown := func(context.Context) error { return nil }

	if opts.BetterStackToken != "" {
		remote := slogbetterstack.Option{
			Level:    lv,
			Token:    opts.BetterStackToken,
			Endpoint: opts.BetterStackEndpoint,
		}.NewBetterstackHandler()
		async := NewAsyncHandler(remote, opts.Async)
		handler = NewMultiHandler(local, async)
		shutdown = async.Shutdown
	}

	return &Logger{
		Logger:   slog.New(NewContextHandler(handler)),
		level:    lv,
		out:      out,
		shutdown: shutdown,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.LevelKey:
		a.Key = "level"
		lvl := a.Value.String()
		if lvl == "WARN" {
			lvl = "warning"
		} else {
			lvl = strings.ToLower(lvl)
		}
		a.Value = slog.StringValue(lvl)
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// LevelName is the lower-case name used in the JSON "level" field.
type LevelName string

func (n LevelName) String() string { return string(n) }

// GetLevel returns the current minimum level.
func (l *Logger) GetLevel() LevelName {
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return "debug"
	case lv <= slog.LevelInfo:
		return "info"
	case lv <= slog.LevelWarn:
		return "warning"
	default:
		return "error"
	}
}

// SetLevel changes the minimum level for this logger and all derived loggers.
func (l *Logger) SetLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		l.level.Set(parseLevel(level))
		return nil
	default:
		return fmt.Errorf("logger: unknown level %q", level)
	}
}

// SetOutput redirects local JSON output.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

// Shutdown flushes pending remote records.
func (l *Logger) Shutdown(ctx context.Context) error {
	if l == nil || l.shutdown == nil {
		return nil
	}
	return l.shutdown(ctx)
}

func (l *Logger) derive(s *slog.Logger) *Logger {
	return &Logger{Logger: s, level: l.level, out: l.out, shutdown: l.shutdown}
}

// WithModule creates a new entry with module field
func (l *Logger) WithModule(module string) *Logger {
	return l.derive(l.With("module", module))
}

// WithRequestID creates a new entry with request ID field
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.derive(l.With("request_id", requestID))
}

// WithScanID creates a new entry with scan ID field
func (l *Logger) WithScanID(scanID string) *Logger {
	return l.derive(l.With("scan_id", scanID))
}

// WithError creates a new entry with error field
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.With("error", err))
}

// WithField creates a new entry with a single field
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(l.With(key, value))
}

// WithFields creates a new entry with multiple fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(l.With(args...))
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}
