package logger

import (
	"fmt"
	logpkg "log"
	"os"
	"strings"
)

// Level defines severity for logger output.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = map[string]Level{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
}

// ParseLevel maps a flag value such as "debug" to a Level.
func ParseLevel(name string) (Level, error) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	logger *logpkg.Logger
}

// New creates a logger with desired level and prefix.
func New(level Level, prefix string) *Logger {
	return &Logger{
		level:  level,
		logger: logpkg.New(os.Stderr, prefix, logpkg.LstdFlags|logpkg.Lmicroseconds),
	}
}

// SetLevel adjusts current logging level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.level = level
}

// Enabled reports whether messages at level would be printed.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level <= l.level
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil || target > l.level {
		return
	}
	l.logger.Output(3, fmt.Sprintf(format, args...))
}

// Debugf prints debug messages.
func (l *Logger) Debugf(format string, args ...any) {
	l.logf(LevelDebug, format, args...)
}

// Infof prints info messages.
func (l *Logger) Infof(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

// Warnf prints warning messages.
func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

// Errorf prints error messages.
func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

var defaultLogger = New(LevelInfo, "[MMU] ")

// Default returns the process logger used when none is injected.
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the default logger (primarily for tests).
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}
