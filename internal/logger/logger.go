// Package logger provides the process-wide zerolog logger used across the
// module. Library code takes sub-loggers from Logger(); applications can
// replace or silence it.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Logger returns the current logger.
func Logger() zerolog.Logger {
	return logger
}

// Set replaces the logger.
func Set(l zerolog.Logger) {
	logger = l
}

// SetOutput redirects the logger's output.
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// SetLevel adjusts the minimum level.
func SetLevel(level zerolog.Level) {
	logger = logger.Level(level)
}

// Disable silences the logger.
func Disable() {
	logger = zerolog.Nop()
}
