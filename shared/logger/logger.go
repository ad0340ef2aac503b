package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/natefinch/lumberjack"
)

// Config holds logger configuration
type Config struct {
	Level        string // debug, info, warn, error
	Format       string // json, console
	Output       string // stdout, stderr, or file path
	EnableSource bool   // Enable source code location
	TimeFormat   string // Time format for console output

	// Rotation settings, only used when Output is a file path
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// writer overrides Output, used by tests
	writer io.Writer
}

// Logger wraps slog.Logger
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a new logger instance
func New(config *Config) (*Logger, error) {
	level := parseLevel(config.Level)

	var writer io.Writer
	var closer io.Closer
	switch {
	case config.writer != nil:
		writer = config.writer
	case config.Output == "stderr":
		writer = os.Stderr
	case config.Output == "stdout", config.Output == "":
		writer = os.Stdout
	default:
		rotating := &lumberjack.Logger{
			Filename:   config.Output,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		writer = rotating
		closer = rotating
	}

	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.EnableSource,
	}

	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "console", "":
		// Use tint for colorful console output
		timeFormat := config.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}

		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			AddSource:  config.EnableSource,
			TimeFormat: timeFormat,
			NoColor:    closer != nil, // no escape codes in log files
		})
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{Logger: slog.New(handler), closer: closer}, nil
}

// NewDefault creates a logger with default settings (console format, info level)
func NewDefault() *Logger {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
		NoColor:    false,
	})

	return &Logger{Logger: slog.New(handler)}
}

// NewDiscard returns a logger that drops everything
func NewDiscard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Close flushes and closes a file-backed output. It is a no-op otherwise.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithGroup creates a new logger with a group namespace
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{Logger: l.Logger.WithGroup(name), closer: l.closer}
}

// WithAttrs creates a new logger with additional attributes
func (l *Logger) WithAttrs(attrs ...slog.Attr) *Logger {
	return &Logger{Logger: l.Logger.With(attrsToAny(attrs)...), closer: l.closer}
}

// With creates a new logger with additional key-value pairs
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// attrsToAny converts []slog.Attr to []any
func attrsToAny(attrs []slog.Attr) []any {
	result := make([]any, len(attrs))
	for i, attr := range attrs {
		result[i] = attr
	}
	return result
}
