// Package slotbox provides a multi-tenant, channel-addressed single-slot
// mailbox store for lightweight local interprocess communication.
//
// A [Store] hosts a fixed range of endpoints. Each endpoint carries any
// number of channels, addressed by a caller-chosen non-zero [ChannelID].
// Every channel holds exactly one message: the most recent write. Reads
// return that message without consuming it, and never wait for one.
//
// # Quick Start
//
//	st, err := slotbox.New()
//	if err != nil {
//	    return err
//	}
//
//	sess, err := st.Open(3)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	if err := sess.Bind(7); err != nil {
//	    return err
//	}
//	sess.Write([]byte("hello"))
//
//	buf := make([]byte, slotbox.DefaultBufferSize)
//	n, err := sess.Read(buf) // "hello", 5
//
// # Configuration
//
// Limits are set with functional options:
//
//	st, err := slotbox.New(
//	    slotbox.WithBufferSize(256),
//	    slotbox.WithMaxEndpoints(16),
//	    slotbox.WithMaxSessions(64),
//	    slotbox.WithLogger(logger),
//	)
//
// # Errors
//
// Every failure wraps one of the sentinel errors ([ErrInvalidArgument],
// [ErrInvalidState], [ErrNoMessage], [ErrBufferTooSmall], [ErrOutOfMemory],
// [ErrResourceExhausted], [ErrIOFailure], [ErrClosed]); use [errors.Is] to
// classify them. Nothing is retried internally and a failed operation never
// affects other sessions or channels.
//
// # Architecture
//
//   - internal/table: the channel table (per-endpoint maps, atomic slots)
//   - internal/server: HTTP transport exposing a Store on a unix socket or TCP
//   - client: the caller side of that transport
//   - config: YAML configuration for the slotbox binary
//   - cmd/slotbox: serve, send and receive commands
package slotbox
