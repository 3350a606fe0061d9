package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rickgao/ashare-data/internal/config"
)

// FileLayout names daily log files.
const FileLayout = "20060102"

// Logger bundles the configured logger with its error counter and file.
type Logger struct {
	*slog.Logger
	Errors *ErrorCounter

	file *dailyFile
}

// Path returns the daily log file currently written to.
func (l *Logger) Path() string {
	return l.file.Path()
}

// Close closes the daily log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// ParseLevel converts a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New creates a logger writing to stdout and to the current day's file in
// cfg.Dir.
func New(cfg config.LogConfig) (*Logger, error) {
	return NewWithWriter(cfg, time.Now, os.Stdout)
}

// NewWithWriter is New with a custom clock and console writer. The clock
// decides which daily file a record lands in.
func NewWithWriter(cfg config.LogConfig, now func() time.Time, console io.Writer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	f, err := openDaily(cfg.Dir, now)
	if err != nil {
		return nil, err
	}

	handler := slog.NewTextHandler(io.MultiWriter(console, f), &slog.HandlerOptions{
		Level: level,
	})
	counter := NewErrorCounter(handler)

	return &Logger{
		Logger: slog.New(counter),
		Errors: counter,
		file:   f,
	}, nil
}

// ErrorCounter is a slog.Handler that counts records at ERROR level or above
// before passing them on.
type ErrorCounter struct {
	next  slog.Handler
	count *atomic.Int64
}

// NewErrorCounter wraps next.
func NewErrorCounter(next slog.Handler) *ErrorCounter {
	return &ErrorCounter{next: next, count: new(atomic.Int64)}
}

// Count returns the number of ERROR records seen so far.
func (h *ErrorCounter) Count() int64 {
	return h.count.Load()
}

// Reset sets the count back to zero.
func (h *ErrorCounter) Reset() {
	h.count.Store(0)
}

func (h *ErrorCounter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || h.next.Enabled(ctx, level)
}

func (h *ErrorCounter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		h.count.Add(1)
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ErrorCounter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrorCounter{next: h.next.WithAttrs(attrs), count: h.count}
}

func (h *ErrorCounter) WithGroup(name string) slog.Handler {
	return &ErrorCounter{next: h.next.WithGroup(name), count: h.count}
}
