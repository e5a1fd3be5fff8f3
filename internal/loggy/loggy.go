// Package loggy wraps log/slog with a process-wide logger and source tagging.
package loggy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Config configures the logger
type Config struct {
	Level      slog.Level
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or a file path
	AddSource  bool
	TimeFormat string // empty uses RFC3339
}

// DefaultConfig returns a default configuration for the logger
func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		Format:     "text",
		Output:     "stderr",
		AddSource:  true,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger
type Logger struct {
	slogger   *slog.Logger
	addSource bool
}

// Init initializes the global logger. Only the first call has any effect.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var output io.Writer
		output, err = openOutput(cfg.Output)
		if err != nil {
			return
		}
		globalLogger = New(output, cfg)
	})

	if err != nil {
		NewNoopLogger()
	}

	return err
}

// New builds a Logger writing to w without touching the global logger.
func New(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	if cfg.TimeFormat != "" {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format(cfg.TimeFormat))
				}
			}
			return a
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{slogger: slog.New(handler), addSource: cfg.AddSource}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalLogger = logger
}

// NewNoopLogger creates and installs a logger that discards all output, useful for testing
func NewNoopLogger() *Logger {
	noop := &Logger{
		slogger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	SetGlobalLogger(noop)
	return noop
}

// getCaller returns the file and line skip frames above it
func getCaller(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", 0
	}
	return file, line
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	globalLogger.log(slog.LevelDebug, msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	globalLogger.log(slog.LevelInfo, msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	globalLogger.log(slog.LevelWarn, msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	globalLogger.log(slog.LevelError, msg, args...)
}

// With returns a child of the global logger with the given attributes
func With(args ...any) *Logger {
	return globalLogger.With(args...)
}

// log is shared by the package functions and methods; both sit exactly
// one frame above it, so the caller is always three frames up.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.slogger == nil {
		return
	}

	ctx := context.Background()
	if !l.slogger.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.addSource {
		file, line := getCaller(3)
		r.AddAttrs(slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
	}
	r.Add(args...)

	_ = l.slogger.Handler().Handle(ctx, r)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// With returns a Logger that includes the given attributes in each record
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{slogger: l.slogger.With(args...), addSource: l.addSource}
}

// WithGroup returns a Logger that nests subsequent attributes under name
func (l *Logger) WithGroup(name string) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{slogger: l.slogger.WithGroup(name), addSource: l.addSource}
}

// WithError adds error details to a logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
	)
}

// Handler returns the underlying slog.Handler
func (l *Logger) Handler() slog.Handler {
	return l.slogger.Handler()
}
