// Package logging provides structured logging with file output support.
// It uses environment variables for configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Level parses MACHDIS_LOG_LEVEL. MACHDIS_DEBUG forces debug.
func Level() log.Level {
	if IsDebug() {
		return log.DebugLevel
	}
	switch os.Getenv("MACHDIS_LOG_LEVEL") {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           Level(),
	})

	prefix := os.Getenv("MACHDIS_LOG_PREFIX")
	if prefix == "" {
		prefix = "machdis "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// MACHDIS_LOG_LEVEL: debug, info, warn, error (default: info)
// MACHDIS_LOG_PREFIX: prefix for log messages (default: "machdis ")
// MACHDIS_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)

	if os.Getenv("MACHDIS_LOG_TO_FILE") == "1" {
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("machdis-%s-debug.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output)
}

// Setup builds the process logger and installs it as the slog default.
func Setup() *LoggerCloser {
	lg := NewLogger()
	slog.SetDefault(slog.New(lg.Logger))
	initialized.Store(true)
	return lg
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv("MACHDIS_DEBUG") != "" || os.Getenv("MACHDIS_LOG_LEVEL") == "debug"
}
