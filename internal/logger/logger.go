// Package logger provides module-scoped structured logging built on log/slog.
//
// Components receive a Logger through their constructors and derive child
// loggers with Module:
//
//	log := logger.New(logger.Config{Level: "info", Format: "text"})
//	sessLog := log.Module("session")
//	sessLog.Info("batch started", logger.Int("forms", 12))
//
// Output always goes to stderr (stdout is reserved for MCP traffic and CLI
// summaries), optionally mirrored to a file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger is the logging interface used throughout formscan.
type Logger interface {
	// Module returns a child logger whose module attribute is parent.name.
	Module(name string) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a logger that adds fields to every record.
	With(fields ...Field) Logger
	// WithContext attaches the session id carried by ctx, if any.
	WithContext(ctx context.Context) Logger
}

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }

// Error wraps err under the "error" key. A nil error is logged as null.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Config selects level, format and optional file output.
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
	File   string `mapstructure:"file" yaml:"file"`
}

type sessionKey struct{}

// WithSessionID stores a session id on ctx for WithContext.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// New builds a root logger. A log file that cannot be opened is reported on
// stderr and ignored.
func New(cfg Config) Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				w = io.MultiWriter(os.Stderr, f)
			} else {
				fmt.Fprintf(os.Stderr, "logger: cannot open %s: %v\n", cfg.File, err)
			}
		}
	}
	return NewWithWriter(w, cfg)
}

// NewWithWriter builds a root logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &slogLogger{base: slog.New(h)}
}

// NewDiscard returns a logger that drops everything.
func NewDiscard() Logger {
	return &slogLogger{base: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type slogLogger struct {
	base   *slog.Logger
	module string
}

func (l *slogLogger) Module(name string) Logger {
	module := name
	if l.module != "" {
		module = l.module + "." + name
	}
	return &slogLogger{base: l.base, module: module}
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{base: l.base.With(toArgs(fields)...), module: l.module}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return l.With(String("session_id", id))
	}
	return l
}

func (l *slogLogger) log(level slog.Level, msg string, fields []Field) {
	if !l.base.Enabled(context.Background(), level) {
		return
	}
	args := toArgs(fields)
	if l.module != "" {
		args = append([]any{slog.String("module", l.module)}, args...)
	}
	l.base.Log(context.Background(), level, msg, args...)
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}
