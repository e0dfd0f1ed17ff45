package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logger is the package-level structured logger for all engine operations.
// Defaults to a no-op (discard) handler until InitLogger is called, so
// library use and tests stay silent.
var logger *slog.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// errorRingSize is how many recent error entries the stats API exposes.
const errorRingSize = 5

// InitLogger configures the engine logger.
// Console output is always on: INFO→stdout, WARN/ERROR→stderr.
// If logDir is non-empty, also writes level-split rotating log files:
//   - freeze_warn.log  — WARN + ERROR
//   - freeze_info.log  — INFO only (1MB, 1 backup)
//   - freeze_debug.log — DEBUG only (1MB, 1 backup)
func InitLogger(logDir string) {
	console := &consoleHandler{
		stdout: slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		stderr: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}

	handlers := []slog.Handler{console, &errorCaptureHandler{}}

	if logDir != "" {
		os.MkdirAll(logDir, 0750) //nolint:errcheck

		warnFile := slog.NewTextHandler(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "freeze_warn.log"),
			MaxSize:    100,
			MaxBackups: 3,
		}, &slog.HandlerOptions{Level: slog.LevelWarn})

		infoFile := &levelRangeHandler{
			min: slog.LevelInfo,
			max: slog.LevelInfo,
			inner: slog.NewTextHandler(&lumberjack.Logger{
				Filename:   filepath.Join(logDir, "freeze_info.log"),
				MaxSize:    1,
				MaxBackups: 1,
			}, &slog.HandlerOptions{Level: slog.LevelInfo}),
		}

		debugFile := &levelRangeHandler{
			min: slog.LevelDebug,
			max: slog.LevelDebug,
			inner: slog.NewTextHandler(&lumberjack.Logger{
				Filename:   filepath.Join(logDir, "freeze_debug.log"),
				MaxSize:    1,
				MaxBackups: 1,
			}, &slog.HandlerOptions{Level: slog.LevelDebug}),
		}

		handlers = append(handlers, warnFile, infoFile, debugFile)
	}

	logger = slog.New(&multiHandler{handlers: handlers})
}

// InitLoggerQuiet configures the engine logger without console output.
// Used by the MCP front end, whose stdout carries the protocol stream.
// File logging still applies when logDir is non-empty.
func InitLoggerQuiet(logDir string) {
	handlers := []slog.Handler{&errorCaptureHandler{}}

	if logDir != "" {
		os.MkdirAll(logDir, 0750) //nolint:errcheck
		handlers = append(handlers, slog.NewTextHandler(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "freeze_warn.log"),
			MaxSize:    100,
			MaxBackups: 3,
		}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	logger = slog.New(&multiHandler{handlers: handlers})
}

// sub returns a child logger tagged with the given component name.
func sub(component string) *slog.Logger {
	return logger.With("comp", component)
}

// Logger returns a component-tagged child of the engine logger for use by
// the front ends.
func Logger(component string) *slog.Logger {
	return sub(component)
}

// logEnabled reports whether the given log level is enabled.
// Use this to guard expensive DEBUG logging in hot paths.
func logEnabled(level slog.Level) bool {
	return logger.Enabled(context.Background(), level)
}

// --- consoleHandler: routes INFO→stdout, WARN+→stderr ---

type consoleHandler struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderr.Handle(ctx, r)
	}
	return h.stdout.Handle(ctx, r)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{
		stdout: h.stdout.WithAttrs(attrs),
		stderr: h.stderr.WithAttrs(attrs),
	}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return &consoleHandler{
		stdout: h.stdout.WithGroup(name),
		stderr: h.stderr.WithGroup(name),
	}
}

// --- errorCapture: keeps the most recent error-level log entries ---

// LogEntry is a captured error log entry, exposed via Stats.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Comp    string    `json:"comp"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

var errorRing struct {
	mu      sync.Mutex
	entries [errorRingSize]LogEntry
	count   int
}

// RecentErrors returns the most recent error log entries, newest first.
func RecentErrors() []LogEntry {
	errorRing.mu.Lock()
	defer errorRing.mu.Unlock()
	n := errorRing.count
	if n > errorRingSize {
		n = errorRingSize
	}
	out := make([]LogEntry, n)
	for i := 0; i < n; i++ {
		out[i] = errorRing.entries[(errorRing.count-1-i+errorRingSize)%errorRingSize]
	}
	return out
}

type errorCaptureHandler struct{}

func (h *errorCaptureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *errorCaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:    r.Time,
		Message: r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "comp":
			entry.Comp = a.Value.String()
		case "err":
			entry.Error = a.Value.String()
		}
		return true
	})
	errorRing.mu.Lock()
	errorRing.entries[errorRing.count%errorRingSize] = entry
	errorRing.count++
	errorRing.mu.Unlock()
	return nil
}

func (h *errorCaptureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *errorCaptureHandler) WithGroup(_ string) slog.Handler      { return h }

// --- levelRangeHandler: passes only a specific level range ---

type levelRangeHandler struct {
	min, max slog.Level
	inner    slog.Handler
}

func (h *levelRangeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min && level <= h.max
}

func (h *levelRangeHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelRangeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelRangeHandler) WithGroup(name string) slog.Handler {
	return &levelRangeHandler{min: h.min, max: h.max, inner: h.inner.WithGroup(name)}
}

// --- multiHandler: fans out to multiple handlers ---

type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		hs[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
