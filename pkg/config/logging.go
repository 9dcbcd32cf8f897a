package config

import (
	"log/slog"
	"os"
)

// SetupLogging installs the default slog logger with the level taken from
// LOG_LEVEL (default INFO). Unknown level names fall back to INFO.
func SetupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(GetEnvOrDefault("LOG_LEVEL", "INFO"))); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
