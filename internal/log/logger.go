// Package log provides a global logger with configurable logging level. The intended use is for
// command-line tools and development builds.

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events (scan start/stop, adapter changes).
	LevelDebug                // Logs every advertisement and registry merge.
)

var levelNames = map[string]Level{
	"none":    LevelNone,
	"error":   LevelError,
	"warn":    LevelWarning,
	"warning": LevelWarning,
	"info":    LevelInfo,
	"debug":   LevelDebug,
}

var (
	globalLogLevel Level
	logMutex       sync.Mutex
	logger         = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return l
}

// ParseLevel converts a level name ("debug", "info", "warn", "error", "none") into a Level.
func ParseLevel(name string) (Level, error) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level, nil
	}
	return LevelNone, fmt.Errorf("unknown log level '%s'", name)
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log output to w.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logger.SetOutput(w)
}

func logLevel() Level {
	logMutex.Lock()
	defer logMutex.Unlock()
	return globalLogLevel
}

func log(level Level, format string, a ...interface{}) {
	if level > logLevel() {
		return
	}
	switch level {
	case LevelDebug:
		logger.Debugf(format, a...)
	case LevelInfo:
		logger.Infof(format, a...)
	case LevelWarning:
		logger.Warnf(format, a...)
	case LevelError:
		logger.Errorf(format, a...)
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
