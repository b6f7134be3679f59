package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// New returns a slog.Logger configured for structured, JSON-oriented output.
func New(subsystem string) *slog.Logger {
	return NewWithLevel(subsystem, slog.LevelInfo)
}

// NewWithLevel is New with an explicit minimum level.
func NewWithLevel(subsystem string, level slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true, Level: level})
	return slog.New(handler).With("subsystem", subsystem)
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to slog levels.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
}
