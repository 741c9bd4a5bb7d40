// Package logs configures the process-wide slog logger used by both the
// CLI and the reconciliation engine.
package logs

import (
	"log/slog"
	"os"
	"strings"

	"github.com/aws/smithy-go/logging"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var logLevel string

const (
	// LevelNone suppresses all log output, including errors.
	LevelNone = slog.Level(12)
)

func getLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return slog.LevelError + 4
	case "none":
		return LevelNone
	default:
		return slog.LevelInfo
	}
}

// New builds a leveled, human-readable console logger.
func New() *slog.Logger {
	w := os.Stderr
	handler := tint.NewHandler(w, &tint.Options{
		Level:   getLevelFromString(logLevel),
		NoColor: !isatty.IsTerminal(w.Fd()),
	})
	return slog.New(handler)
}

// SetLevel sets the level used by subsequent calls to New/ConfigureDefaults.
func SetLevel(level string) {
	logLevel = level
}

// ConfigureDefaults sets the given level and installs the resulting logger
// as slog's process default.
func ConfigureDefaults(level string) {
	SetLevel(level)
	slog.SetDefault(New())
}

// ProviderLogger adapts the process logger to the smithy-go logging.Logger
// interface expected by aws.Config, so provider API traffic lands in the
// same structured log stream as the rest of the engine instead of a
// separate file.
func ProviderLogger() logging.Logger {
	return logging.LoggerFunc(func(classification logging.Classification, format string, v ...interface{}) {
		logger := New().With("component", "provider")
		switch classification {
		case logging.Debug:
			logger.Debug(format, v...)
		case logging.Warn:
			logger.Warn(format, v...)
		default:
			logger.Debug(format, v...)
		}
	})
}
