package slotbox

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	st, err := New()
	require.NoError(t, err)

	assert.Equal(t, DefaultBufferSize, st.BufferSize())
	assert.Equal(t, DefaultMaxEndpoints, st.MaxEndpoints())
}

func TestWithBufferSize(t *testing.T) {
	st := newTestStore(t, WithBufferSize(4))
	assert.Equal(t, 4, st.BufferSize())

	s := openBound(t, st, 0, 1)
	_, err := s.Write([]byte("four"))
	require.NoError(t, err)
	_, err = s.Write([]byte("five!"))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWithMaxEndpoints(t *testing.T) {
	st := newTestStore(t, WithMaxEndpoints(2))
	assert.Equal(t, 2, st.MaxEndpoints())

	s, err := st.Open(1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = st.Open(2)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWithMaxSessions(t *testing.T) {
	st := newTestStore(t, WithMaxSessions(1))

	s, err := st.Open(0)
	require.NoError(t, err)

	_, err = st.Open(0)
	require.ErrorIs(t, err, ErrResourceExhausted)

	require.NoError(t, s.Close())
	s, err = st.Open(0)
	require.NoError(t, err, "Open() after Close")
	require.NoError(t, s.Close())
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"zero buffer", WithBufferSize(0), "buffer size must be positive"},
		{"negative buffer", WithBufferSize(-8), "buffer size must be positive"},
		{"zero endpoints", WithMaxEndpoints(0), "max endpoints must be positive"},
		{"negative endpoints", WithMaxEndpoints(-1), "max endpoints must be positive"},
		{"zero sessions", WithMaxSessions(0), "max sessions must be positive"},
		{"negative slots", WithMaxSlots(-1), "max slots cannot be negative"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	st, err := New(WithLogger(logger))
	require.NoError(t, err)

	s, err := st.Open(3)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, st.Teardown())

	output := buf.String()
	assert.Contains(t, output, "session opened")
	assert.Contains(t, output, "endpoint=3")
	assert.Contains(t, output, "store torn down")
}
