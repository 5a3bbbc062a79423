package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyConfig(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	// check defaults applied
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, 128, cfg.BufferSize)
	assert.Equal(t, 256, cfg.MaxEndpoints)
	assert.Equal(t, 1024, cfg.MaxSessions)
	assert.Equal(t, 0, cfg.MaxSlots)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout.Duration())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
listen: tcp://127.0.0.1:7070
buffer_size: 256
max_endpoints: 8
max_sessions: 16
max_slots: 100
session_idle_timeout: 30s
log_level: debug
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "tcp://127.0.0.1:7070", cfg.Listen)
	assert.Equal(t, 256, cfg.BufferSize)
	assert.Equal(t, 8, cfg.MaxEndpoints)
	assert.Equal(t, 16, cfg.MaxSessions)
	assert.Equal(t, 100, cfg.MaxSlots)
	assert.Equal(t, 30*time.Second, cfg.SessionIdleTimeout.Duration())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestConfig_Network(t *testing.T) {
	tests := []struct {
		name        string
		listen      string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{"unix absolute", "unix:///run/slotbox.sock", "unix", "/run/slotbox.sock", false},
		{"unix relative", "unix://slotbox.sock", "unix", "slotbox.sock", false},
		{"tcp", "tcp://127.0.0.1:7070", "tcp", "127.0.0.1:7070", false},
		{"tcp any host", "tcp://:7070", "tcp", ":7070", false},
		{"no scheme", "/run/slotbox.sock", "", "", true},
		{"bad scheme", "http://127.0.0.1:7070", "", "", true},
		{"tcp no port", "tcp://127.0.0.1", "", "", true},
		{"unix no path", "unix://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Listen: tt.listen}
			network, address, err := cfg.Network()
			if tt.wantErr {
				require.Error(t, err, "got %s %s", network, address)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNetwork, network)
			assert.Equal(t, tt.wantAddress, address)
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "listen without scheme",
			yaml:        `listen: /tmp/slotbox.sock`,
			wantErrLike: "must have a scheme",
		},
		{
			name:        "listen with http scheme",
			yaml:        `listen: http://localhost:80`,
			wantErrLike: "must be unix or tcp",
		},
		{
			name:        "negative buffer size",
			yaml:        `buffer_size: -1`,
			wantErrLike: "buffer_size",
		},
		{
			name:        "huge buffer size",
			yaml:        `buffer_size: 1000000`,
			wantErrLike: "buffer_size",
		},
		{
			name:        "negative endpoints",
			yaml:        `max_endpoints: -4`,
			wantErrLike: "max_endpoints",
		},
		{
			name:        "negative sessions",
			yaml:        `max_sessions: -1`,
			wantErrLike: "max_sessions",
		},
		{
			name:        "negative slots",
			yaml:        `max_slots: -1`,
			wantErrLike: "max_slots",
		},
		{
			name:        "idle timeout too short",
			yaml:        `session_idle_timeout: 10ms`,
			wantErrLike: "session_idle_timeout must be at least",
		},
		{
			name:        "unknown log level",
			yaml:        `log_level: verbose`,
			wantErrLike: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrLike)
		})
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	// t.Setenv auto-restores after test
	t.Setenv("TEST_SLOTBOX_HOST", "10.0.0.5")

	cfg, err := Parse([]byte(`listen: tcp://${TEST_SLOTBOX_HOST}:7070`))
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.5:7070", cfg.Listen)
}

func TestParse_EnvVarDefault(t *testing.T) {
	cfg, err := Parse([]byte(`listen: unix://${UNSET_SLOTBOX_DIR:-/var/run}/slotbox.sock`))
	require.NoError(t, err)

	_, address, err := cfg.Network()
	require.NoError(t, err)
	assert.Equal(t, "/var/run/slotbox.sock", address)
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_SLOTBOX_VAR is expected to not exist in the environment
	_, err := Parse([]byte(`listen: tcp://${MISSING_SLOTBOX_VAR}:7070`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_SLOTBOX_VAR")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("listen: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "10s", 10 * time.Second, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"hours", "1h", 1 * time.Hour, false},
		{"combined", "1m30s", 90 * time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte("session_idle_timeout: " + tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.SessionIdleTimeout.Duration())
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_endpoints: 2\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxEndpoints)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/slotbox.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}
