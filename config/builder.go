package config

import (
	"log/slog"

	"github.com/jpalmerr/slotbox"
)

// BuildOptions converts parsed configuration into slotbox Store options.
//
// logger may be nil, in which case the Store falls back to slog.Default.
func BuildOptions(cfg *Config, logger *slog.Logger) []slotbox.Option {
	opts := []slotbox.Option{
		slotbox.WithBufferSize(cfg.BufferSize),
		slotbox.WithMaxEndpoints(cfg.MaxEndpoints),
		slotbox.WithMaxSessions(cfg.MaxSessions),
		slotbox.WithMaxSlots(cfg.MaxSlots),
	}
	if logger != nil {
		opts = append(opts, slotbox.WithLogger(logger))
	}
	return opts
}

// NewStore builds a slotbox Store from cfg.
func NewStore(cfg *Config, logger *slog.Logger) (*slotbox.Store, error) {
	return slotbox.New(BuildOptions(cfg, logger)...)
}
