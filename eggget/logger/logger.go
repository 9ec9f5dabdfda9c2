package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// LogLevelSilent disables all logging
	LogLevelSilent LogLevel = iota
	// LogLevelError shows only errors
	LogLevelError
	// LogLevelWarn shows warnings and errors
	LogLevelWarn
	// LogLevelInfo shows info, warnings, and errors (verbose mode)
	LogLevelInfo
	// LogLevelDebug shows all logs including chunk walk tracing
	LogLevelDebug
)

var levelNames = map[LogLevel]string{
	LogLevelSilent: "silent",
	LogLevelError:  "error",
	LogLevelWarn:   "warn",
	LogLevelInfo:   "info",
	LogLevelDebug:  "debug",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int32(l))
}

// ParseLogLevel maps a level name as accepted by the CLI to a LogLevel
func ParseLogLevel(name string) (LogLevel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return LogLevelSilent, fmt.Errorf("unknown log level %q", name)
}

// Logger gates messages by LogLevel and hands them to logrus for formatting
type Logger struct {
	level atomic.Int32
	out   *logrus.Logger
}

func newLogger(w io.Writer, level LogLevel) *Logger {
	out := logrus.New()
	out.SetOutput(w)
	out.SetLevel(logrus.DebugLevel)
	out.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l := &Logger{out: out}
	l.level.Store(int32(level))
	return l
}

var defaultLogger = newLogger(os.Stderr, LogLevelError)

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	defaultLogger.level.Store(int32(level))
}

// GetLogLevel returns the current log level
func GetLogLevel() LogLevel {
	return LogLevel(defaultLogger.level.Load())
}

// SetOutput redirects the global logger
func SetOutput(w io.Writer) {
	defaultLogger.out.SetOutput(w)
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level == LogLevelSilent || level > LogLevel(l.level.Load()) {
		return
	}

	message := fmt.Sprintf(format, args...)
	switch level {
	case LogLevelError:
		l.out.Error(message)
	case LogLevelWarn:
		l.out.Warn(message)
	case LogLevelInfo:
		l.out.Info(message)
	default:
		l.out.Debug(message)
	}
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	defaultLogger.log(LogLevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	defaultLogger.log(LogLevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	defaultLogger.log(LogLevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	defaultLogger.log(LogLevelError, format, args...)
}
