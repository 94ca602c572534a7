// Package log configures structured logging for all fluxa processes.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process-wide slog handler at the given level. Unknown
// levels fall back to info. LOG_FORMAT=json switches to the JSON handler for
// deployments that ship logs.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithModule returns the default logger tagged with the owning module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
