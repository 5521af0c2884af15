package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger interface for app layer
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Level ordering for the stderr logger
const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// stderrLogger writes leveled lines to a writer, dropping lines below
// its minimum level.
type stderrLogger struct {
	output   io.Writer
	minLevel int
}

// NewLogger creates a leveled logger. Unknown level names fall back to
// "info".
func NewLogger(output io.Writer, level string) Logger {
	return &stderrLogger{output: output, minLevel: parseLevel(level)}
}

func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l *stderrLogger) logf(level int, tag, format string, args ...interface{}) {
	if level < l.minLevel {
		return
	}
	fmt.Fprintf(l.output, tag+": "+format+"\n", args...)
}

func (l *stderrLogger) Debug(format string, args ...interface{}) {
	l.logf(levelDebug, "DEBUG", format, args...)
}

func (l *stderrLogger) Info(format string, args ...interface{}) {
	l.logf(levelInfo, "INFO", format, args...)
}

func (l *stderrLogger) Warn(format string, args ...interface{}) {
	l.logf(levelWarn, "WARN", format, args...)
}

func (l *stderrLogger) Error(format string, args ...interface{}) {
	l.logf(levelError, "ERROR", format, args...)
}

// globalLogger is the logger instance used by app layer
var globalLogger Logger = NewLogger(os.Stderr, "info")

// SetLogger sets the global logger for app layer
func SetLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

// GetLogger returns the current logger
func GetLogger() Logger {
	return globalLogger
}
