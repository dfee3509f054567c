package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger keeps the Printf/Errorf call sites used across the codebase while
// emitting structured records.
type Logger struct {
	l *slog.Logger
}

func NewLogger() *Logger {
	return NewLoggerWithOptions(os.Stdout, "text", "info")
}

func NewLoggerWithOptions(w io.Writer, format, level string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{l: slog.New(h)}
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

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.l.Error(fmt.Sprintf(format, args...))
}

// With returns a logger that attaches the given key/value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{l: l.l.With(args...)}
}

func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l.l
}
