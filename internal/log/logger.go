// Package log is the process-wide leveled logger. It keeps a small
// package-level API (SetLevel, Infof, ...) so call sites stay terse, and
// delegates formatting and output to a logrus logger.
package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// --- Global Logger State ---

// currentLevel mirrors the logrus level so GetLevel never touches the logger.
var currentLevel atomic.Uint32

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
	})
	return l
}

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	logger.SetLevel(level.logrus())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Logger exposes the underlying logrus logger for libraries that accept one.
func Logger() *logrus.Logger {
	return logger
}

// WithField returns an entry carrying a structured field.
func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	logger.Debugf(format, v...)
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	logger.Infof(format, v...)
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	logger.Warnf(format, v...)
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	logger.Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...any) {
	logger.Fatalf(format, v...)
}

// --- Functions without formatting (convenience) ---

func Debug(v ...any) { logger.Debug(v...) }
func Info(v ...any)  { logger.Info(v...) }
func Warn(v ...any)  { logger.Warn(v...) }
func Error(v ...any) { logger.Error(v...) }
func Fatal(v ...any) { logger.Fatal(v...) }
