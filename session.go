package slotbox

import "fmt"

// Session is the per-handle state of one caller: a fixed endpoint and the
// channel currently selected on it.
//
// A new session is unbound. [Session.Bind] selects a channel and may be
// called again to switch channels; there is no way back to unbound. A
// Session is owned by a single caller and is not safe for concurrent use.
type Session struct {
	id       string
	store    *Store
	endpoint EndpointID
	channel  ChannelID
	closed   bool
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Endpoint returns the endpoint the session was opened on.
func (s *Session) Endpoint() EndpointID { return s.endpoint }

// Channel returns the bound channel, or 0 if the session is unbound.
func (s *Session) Channel() ChannelID { return s.channel }

// Bind selects ch for subsequent reads and writes.
//
// Bind fails with [ErrInvalidArgument] for channel 0, leaving any previous
// binding in place. Binding never creates a slot.
func (s *Session) Bind(ch ChannelID) error {
	if s.closed {
		return fmt.Errorf("bind: %w: session closed", ErrInvalidState)
	}
	if ch == 0 {
		return fmt.Errorf("bind: %w: channel 0 is reserved", ErrInvalidArgument)
	}
	s.channel = ch
	return nil
}

// Read is shorthand for [Store.Read] on the session's store.
func (s *Session) Read(dst []byte) (int, error) {
	return s.store.Read(s, dst)
}

// Write is shorthand for [Store.Write] on the session's store.
func (s *Session) Write(msg []byte) (int, error) {
	return s.store.Write(s, msg)
}

// Close releases the session. Stored messages are not affected. Calling Close
// more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.release(s)
	return nil
}
