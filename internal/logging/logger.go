// Package logging wraps logrus so every component logs through one configured instance.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger.
var Logger *logrus.Logger

// Fields is an alias for logrus.Fields.
type Fields = logrus.Fields

func init() {
	Logger = logrus.New()
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
}

// Init sets the level and, when logFile is non-empty, tees output into that file.
func Init(level string, logFile string) error {
	SetLevel(level)

	if logFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return nil
}

// SetLevel parses level and applies it. Unknown levels fall back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) {
	Logger.Debugf(format, args...)
}

// Infof logs a formatted info message.
func Infof(format string, args ...any) {
	Logger.Infof(format, args...)
}

// Warnf logs a formatted warning message.
func Warnf(format string, args ...any) {
	Logger.Warnf(format, args...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...any) {
	Logger.Errorf(format, args...)
}

// WithFields returns an entry with fields attached.
func WithFields(fields Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithError returns an entry with an error attached.
func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
