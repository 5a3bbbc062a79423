package table

import "sync/atomic"

// EndpointID identifies one addressable endpoint inside a table.
type EndpointID uint32

// ChannelID selects a mailbox within an endpoint. Zero is reserved.
type ChannelID uint64

// Slot is the message buffer for one (endpoint, channel) pair.
//
// The stored message is an immutable byte slice swapped in with a single
// atomic store. Readers load the pointer once and copy from that snapshot, so
// they observe either the previous or the new message in full.
type Slot struct {
	Endpoint EndpointID
	Channel  ChannelID

	content atomic.Pointer[[]byte]
}

func newSlot(ep EndpointID, ch ChannelID) *Slot {
	return &Slot{Endpoint: ep, Channel: ch}
}

// Load returns the current message. The returned slice is shared and must not
// be modified; use [Slot.CopyTo] to get a private copy.
func (s *Slot) Load() []byte {
	p := s.content.Load()
	if p == nil {
		return nil
	}
	return *p
}

// CopyTo copies the current message into dst and returns the number of bytes
// copied, 0 if nothing was written. If dst is shorter than the message
// nothing is copied and ok is false; n then reports the stored length.
func (s *Slot) CopyTo(dst []byte) (n int, ok bool) {
	msg := s.Load()
	if len(dst) < len(msg) {
		return len(msg), false
	}
	return copy(dst, msg), true
}

// replace installs a private copy of msg and returns the previous length.
func (s *Slot) replace(msg []byte) int {
	buf := make([]byte, len(msg))
	copy(buf, msg)
	old := s.content.Swap(&buf)
	if old == nil {
		return 0
	}
	return len(*old)
}
