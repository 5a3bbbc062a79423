package slotbox

import (
	"errors"
	"log/slog"
)

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	bufferSize   int
	maxEndpoints int
	maxSessions  int
	maxSlots     int
	logger       *slog.Logger
}

// Option is a function that configures a [Store] during construction.
//
// Options return an error if validation fails, which [New] passes back to
// the caller.
//
// Built-in options: [WithBufferSize], [WithMaxEndpoints], [WithMaxSessions],
// [WithMaxSlots], [WithLogger].
type Option func(*storeConfig) error

// WithBufferSize sets the largest message a channel can hold.
//
// Defaults to [DefaultBufferSize] (128 bytes).
//
// Returns an error if size is zero or negative.
func WithBufferSize(size int) Option {
	return func(cfg *storeConfig) error {
		if size <= 0 {
			return errors.New("buffer size must be positive")
		}
		cfg.bufferSize = size
		return nil
	}
}

// WithMaxEndpoints sets the endpoint range to [0, n).
//
// Defaults to [DefaultMaxEndpoints] (256).
//
// Returns an error if n is zero or negative.
func WithMaxEndpoints(n int) Option {
	return func(cfg *storeConfig) error {
		if n <= 0 {
			return errors.New("max endpoints must be positive")
		}
		cfg.maxEndpoints = n
		return nil
	}
}

// WithMaxSessions caps the number of simultaneously open sessions. Once the
// cap is reached [Store.Open] fails with [ErrResourceExhausted].
//
// Defaults to [DefaultMaxSessions].
//
// Returns an error if n is zero or negative.
func WithMaxSessions(n int) Option {
	return func(cfg *storeConfig) error {
		if n <= 0 {
			return errors.New("max sessions must be positive")
		}
		cfg.maxSessions = n
		return nil
	}
}

// WithMaxSlots caps the total number of channel slots across all endpoints.
// A write that would create a slot beyond the cap fails with
// [ErrOutOfMemory]. Zero, the default, means no cap.
//
// Returns an error if n is negative.
func WithMaxSlots(n int) Option {
	return func(cfg *storeConfig) error {
		if n < 0 {
			return errors.New("max slots cannot be negative")
		}
		cfg.maxSlots = n
		return nil
	}
}

// WithLogger sets the structured logger used by the [Store].
//
// Defaults to [slog.Default] if not specified.
//
// Returns an error if logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}
