package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu sync.RWMutex

	current = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	DebugEnabled = false

	logFile *os.File
)

// InitLogging sets up logging based on configuration. Records go to stderr
// and, when logPath is set, are also appended to that file.
func InitLogging(debugMode bool, logPath string) error {
	return InitLoggingTo(os.Stderr, debugMode, logPath)
}

// InitLoggingTo is InitLogging with an explicit console writer.
func InitLoggingTo(w io.Writer, debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	out := w
	if logPath != "" {
		logDir := filepath.Dir(logPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
		out = io.MultiWriter(w, f)
	}

	current = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	return nil
}

// Scope logs through the current logger with a fixed set of attributes.
// It follows later InitLogging calls.
type Scope struct {
	args []any
}

// With returns a scope adding args to each of its records. The package
// logger itself is left unchanged.
func With(args ...any) *Scope {
	return &Scope{args: args}
}

// Logger returns the current logger with the scope's attributes.
func (s *Scope) Logger() *slog.Logger {
	return Logger().With(s.args...)
}

func (s *Scope) Debugf(format string, v ...any) {
	logTo(s.Logger(), slog.LevelDebug, format, v...)
}

func (s *Scope) Infof(format string, v ...any) {
	logTo(s.Logger(), slog.LevelInfo, format, v...)
}

func (s *Scope) Warnf(format string, v ...any) {
	logTo(s.Logger(), slog.LevelWarn, format, v...)
}

func (s *Scope) Errorf(format string, v ...any) {
	logTo(s.Logger(), slog.LevelError, format, v...)
}

// Logger returns the underlying structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return current
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func logf(level slog.Level, format string, v ...any) {
	logTo(Logger(), level, format, v...)
}

func logTo(l *slog.Logger, level slog.Level, format string, v ...any) {
	if !l.Enabled(context.Background(), level) {
		return
	}

	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	logf(slog.LevelInfo, format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
}

func Debugf(format string, v ...any) {
	logf(slog.LevelDebug, format, v...)
}

func Warnf(format string, v ...any) {
	logf(slog.LevelWarn, format, v...)
}
