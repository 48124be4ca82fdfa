package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the application logger. Production deployments set
// LOG_FORMAT=json for ingestion; anything else gets the text handler.
// Debug level is enabled outside production so extraction decisions are
// visible while tuning rules.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	if cfg.IsProduction() {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
