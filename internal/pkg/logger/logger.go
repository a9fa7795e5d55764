// Package logger wraps log/slog with the attributes the render service
// tags its records with: request id, job id, component and worker.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey carries the HTTP request id set by middleware.RequestID.
	RequestIDKey contextKey = "request_id"
	// JobIDKey carries the render job id inside the worker pipeline.
	JobIDKey contextKey = "job_id"
)

// Logger is a slog.Logger with render-scoped helpers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stdout,
		ServiceName: "video-processor",
	}
}

// New builds a Logger. Timestamps are written in UTC, RFC3339Nano.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) with(key string, value any) *Logger {
	return &Logger{Logger: l.Logger.With(key, value)}
}

func (l *Logger) WithRequestID(requestID string) *Logger { return l.with("request_id", requestID) }

func (l *Logger) WithJobID(jobID string) *Logger { return l.with("job_id", jobID) }

func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }

// WithWorker tags records with the pool worker index.
func (l *Logger) WithWorker(n int) *Logger { return l.with("worker", n) }

// FromContext returns l enriched with the request and job ids found in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if id, _ := ctx.Value(RequestIDKey).(string); id != "" {
		out = out.WithRequestID(id)
	}
	if id, _ := ctx.Value(JobIDKey).(string); id != "" {
		out = out.WithJobID(id)
	}
	return out
}

// LogError logs err at error level with the caller's file and line.
// A nil err logs nothing.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		args = append(args, slog.Group("source", slog.String("file", file), slog.Int("line", line)))
	}
	args = append(args, "error", err.Error())
	l.FromContext(ctx).Error(msg, args...)
}

// LogFatal logs at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
