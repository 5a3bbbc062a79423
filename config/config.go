// Package config provides YAML configuration parsing for the slotbox server.
//
// Example configuration:
//
//	listen: unix:///run/slotbox.sock
//	buffer_size: 128
//	max_endpoints: 256
//	max_sessions: 1024
//	max_slots: 0
//	session_idle_timeout: 5m
//	log_level: info
//
// The listen address may reference environment variables:
//
//	listen: tcp://${SLOTBOX_HOST:-127.0.0.1}:7070
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is used when the config leaves listen empty.
	DefaultListen = "unix:///tmp/slotbox.sock"

	defaultBufferSize         = 128
	defaultMaxEndpoints       = 256
	defaultMaxSessions        = 1024
	defaultSessionIdleTimeout = 5 * time.Minute

	// maxBufferSize keeps messages "short control messages"; larger payloads
	// belong on a real transport.
	maxBufferSize = 64 * 1024

	// minSessionIdleTimeout prevents reaping sessions between two calls of
	// the same caller.
	minSessionIdleTimeout = time.Second
)

// Config is the root configuration structure for the slotbox server.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Listen is the server address as a URL: unix:///path/to.sock or
	// tcp://host:port. Defaults to unix:///tmp/slotbox.sock.
	Listen string `yaml:"listen"`

	// BufferSize is the largest message a channel holds, in bytes.
	// Defaults to 128.
	BufferSize int `yaml:"buffer_size"`

	// MaxEndpoints is the size of the endpoint range [0, max_endpoints).
	// Defaults to 256.
	MaxEndpoints int `yaml:"max_endpoints"`

	// MaxSessions caps simultaneously open sessions. Defaults to 1024.
	MaxSessions int `yaml:"max_sessions"`

	// MaxSlots caps the total number of channel slots. 0 means unlimited.
	MaxSlots int `yaml:"max_slots"`

	// SessionIdleTimeout closes handles that have not been used for this
	// long. Defaults to 5m.
	SessionIdleTimeout Duration `yaml:"session_idle_timeout"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the listen address are expanded.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates.
//
// An empty document is valid and yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxEndpoints == 0 {
		c.MaxEndpoints = defaultMaxEndpoints
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = defaultMaxSessions
	}
	if c.SessionIdleTimeout == 0 {
		c.SessionIdleTimeout = Duration(defaultSessionIdleTimeout)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.Listen = expanded

	if _, _, err := c.Network(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if c.BufferSize < 0 || c.BufferSize > maxBufferSize {
		return fmt.Errorf("buffer_size must be between 1 and %d, got %d", maxBufferSize, c.BufferSize)
	}
	if c.MaxEndpoints < 0 {
		return fmt.Errorf("max_endpoints must be positive, got %d", c.MaxEndpoints)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.MaxSessions)
	}
	if c.MaxSlots < 0 {
		return fmt.Errorf("max_slots cannot be negative, got %d", c.MaxSlots)
	}
	if c.SessionIdleTimeout.Duration() < minSessionIdleTimeout {
		return fmt.Errorf("session_idle_timeout must be at least %s, got %s",
			minSessionIdleTimeout, c.SessionIdleTimeout.Duration())
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Network splits Listen into a network name ("unix" or "tcp") and address
// suitable for net.Listen.
func (c *Config) Network() (network, address string, err error) {
	u, err := url.Parse(c.Listen)
	if err != nil {
		return "", "", fmt.Errorf("invalid address %q: %w", c.Listen, err)
	}

	switch u.Scheme {
	case "unix":
		path := u.Path
		if u.Host != "" {
			// unix://relative/path.sock
			path = u.Host + u.Path
		}
		if path == "" {
			return "", "", fmt.Errorf("unix address %q has no socket path", c.Listen)
		}
		return "unix", path, nil
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("tcp address %q has no host:port", c.Listen)
		}
		if u.Port() == "" {
			return "", "", fmt.Errorf("tcp address %q has no port", c.Listen)
		}
		return "tcp", u.Host, nil
	case "":
		return "", "", fmt.Errorf("address %q must have a scheme (unix:// or tcp://)", c.Listen)
	default:
		return "", "", fmt.Errorf("address scheme must be unix or tcp, got %q", u.Scheme)
	}
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}
