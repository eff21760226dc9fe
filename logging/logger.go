package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the minimal logging interface used throughout the module. Users
// can provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NewJSONLogger creates a Logger writing JSON records at the given level.
func NewJSONLogger(w io.Writer, level slog.Level) Logger {
	if w == nil {
		w = os.Stdout
	}
	return NewSlogAdapter(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// NoOpLogger discards all log messages. Useful for testing or when logging is
// disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp substitutes a NoOpLogger for nil so components never have to
// nil-check their logger.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// ContextLogger wraps an slog.Logger adding contextual cloning helpers and
// domain convenience methods. Cheap to copy via With* methods.
type ContextLogger struct {
	logger    *slog.Logger
	component string
	userID    string
	sessionID string
}

// NewContextLogger builds a ContextLogger writing JSON to w (stdout if nil).
func NewContextLogger(w io.Writer, level slog.Level) *ContextLogger {
	if w == nil {
		w = os.Stdout
	}
	return &ContextLogger{logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

func (l *ContextLogger) clone() *ContextLogger {
	nl := *l
	return &nl
}

// WithComponent sets the logical component (engine, compression, memory, ...).
func (l *ContextLogger) WithComponent(c string) *ContextLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithTurn attaches user and session identifiers.
func (l *ContextLogger) WithTurn(userID, sessionID string) *ContextLogger {
	nl := l.clone()
	nl.userID = userID
	nl.sessionID = sessionID
	return nl
}

func (l *ContextLogger) attrs(extra ...slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(extra)+3)
	if l.component != "" {
		out = append(out, slog.String("component", l.component))
	}
	if l.userID != "" {
		out = append(out, slog.String("user_id", l.userID))
	}
	if l.sessionID != "" {
		out = append(out, slog.String("session_id", l.sessionID))
	}
	return append(out, extra...)
}

func (l *ContextLogger) log(level slog.Level, msg string, args ...any) {
	l.logger.With(attrsToAny(l.attrs())...).Log(context.Background(), level, msg, args...)
}

func attrsToAny(attrs []slog.Attr) []any {
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}

// Debug logs at debug level.
func (l *ContextLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *ContextLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *ContextLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *ContextLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogModelCall records latency and outcome of an external model call.
func (l *ContextLogger) LogModelCall(op string, dur time.Duration, err error) {
	attrs := []any{"operation", op, "duration", dur, "success", err == nil}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		l.Error("Model call failed", attrs...)
		return
	}
	l.Info("Model call completed", attrs...)
}

// LogTurn records aggregate metrics for one completed turn.
func (l *ContextLogger) LogTurn(steps int, retrieved int, stored int, dur time.Duration, degraded bool) {
	l.Info("Turn completed",
		"steps", steps,
		"retrieved_memories", retrieved,
		"stored_memories", stored,
		"duration", dur,
		"degraded", degraded,
	)
}
