package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	l *slog.Logger
}

func NewLogger() *Logger {
	return NewLoggerWith(os.Stderr, "info", "text")
}

func NewLoggerWith(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{l: slog.New(h)}
}

func NewNopLogger() *Logger {
	return NewLoggerWith(io.Discard, "error", "text")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{l: l.l.With(key, value)}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.l.Error(fmt.Sprintf(format, args...))
}
