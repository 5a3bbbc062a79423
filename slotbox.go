package slotbox

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jpalmerr/slotbox/internal/table"
)

const (
	// DefaultBufferSize is the default message bound in bytes.
	DefaultBufferSize = table.DefaultBufferSize

	// DefaultMaxEndpoints is the default size of the endpoint range.
	DefaultMaxEndpoints = table.DefaultMaxEndpoints

	// DefaultMaxSessions is the default cap on simultaneously open sessions.
	DefaultMaxSessions = 1024
)

// EndpointID identifies one addressable endpoint of a [Store], in the range
// [0, MaxEndpoints).
type EndpointID = table.EndpointID

// ChannelID selects one mailbox within an endpoint. Zero is reserved and
// never valid.
type ChannelID = table.ChannelID

// Event is published after every successful write. It carries the message
// length, not its bytes.
type Event = table.Event

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	table.Stats
	Sessions int    `json:"sessions"`
	Reads    uint64 `json:"reads"`
	Misses   uint64 `json:"misses"`
}

// Store is the slot manager: it hosts the channel table for a range of
// endpoints and implements the bind/read/write protocol on behalf of
// [Session] handles.
//
// A Store is created with [New] and is safe for concurrent use by any number
// of sessions. Each channel holds only the most recently written message;
// reads do not consume it and never wait for one to arrive.
//
// The typical lifecycle is:
//
//	st, err := slotbox.New()
//	if err != nil {
//	    return err
//	}
//	sess, _ := st.Open(3)
//	_ = sess.Bind(7)
//	_, _ = sess.Write([]byte("hello"))
//	buf := make([]byte, slotbox.DefaultBufferSize)
//	n, _ := sess.Read(buf) // buf[:n] == "hello"
//	_ = sess.Close()
//	_ = st.Teardown()
type Store struct {
	table       *table.Table
	maxSessions int
	logger      *slog.Logger

	mu       sync.Mutex
	sessions int
	closed   bool

	reads  atomic.Uint64
	misses atomic.Uint64
}

// New creates a [Store] with the given options.
//
// Defaults:
//   - Buffer size: 128 bytes
//   - Endpoints: 256
//   - Sessions: 1024
//   - Slots: unlimited
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Store, error) {
	cfg := &storeConfig{
		bufferSize:   DefaultBufferSize,
		maxEndpoints: DefaultMaxEndpoints,
		maxSessions:  DefaultMaxSessions,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		table: table.New(table.Options{
			MaxEndpoints: cfg.maxEndpoints,
			BufferSize:   cfg.bufferSize,
			MaxSlots:     cfg.maxSlots,
		}),
		maxSessions: cfg.maxSessions,
		logger:      logger,
	}, nil
}

// BufferSize returns the largest message a channel can hold.
func (st *Store) BufferSize() int { return st.table.BufferSize() }

// MaxEndpoints returns the size of the endpoint range.
func (st *Store) MaxEndpoints() int { return st.table.MaxEndpoints() }

// Open creates an unbound [Session] on endpoint ep.
//
// The session must be bound with [Session.Bind] before it can read or
// write, and released with [Session.Close]. Open fails with
// [ErrResourceExhausted] when the session cap is reached and with
// [ErrInvalidArgument] for an endpoint outside the configured range.
func (st *Store) Open(ep EndpointID) (*Session, error) {
	if int(ep) >= st.table.MaxEndpoints() {
		return nil, fmt.Errorf("open endpoint %d: %w: endpoint outside [0, %d)",
			ep, ErrInvalidArgument, st.table.MaxEndpoints())
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil, fmt.Errorf("open endpoint %d: %w", ep, ErrClosed)
	}
	if st.sessions >= st.maxSessions {
		st.mu.Unlock()
		return nil, fmt.Errorf("open endpoint %d: %w: %d sessions open",
			ep, ErrResourceExhausted, st.maxSessions)
	}
	st.sessions++
	st.mu.Unlock()

	s := &Session{
		id:       uuid.NewString(),
		store:    st,
		endpoint: ep,
	}
	st.logger.Debug("session opened", "session", s.id, "endpoint", ep)
	return s, nil
}

// release returns a session's place to the pool.
func (st *Store) release(s *Session) {
	st.mu.Lock()
	st.sessions--
	st.mu.Unlock()
	st.logger.Debug("session closed", "session", s.id, "endpoint", s.endpoint, "channel", s.channel)
}

// checkSession validates that s belongs to st and is bound and open.
func (st *Store) checkSession(s *Session) error {
	if s == nil || s.store != st {
		return fmt.Errorf("%w: session does not belong to this store", ErrInvalidArgument)
	}
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}
	if s.channel == 0 {
		return fmt.Errorf("%w: no channel bound", ErrInvalidState)
	}
	return nil
}

// Read copies the message stored on the session's channel into dst and
// returns its length.
//
// Read is non-destructive: the message stays in place and a later Read with
// no intervening write returns the same bytes. It never waits: an empty
// channel fails immediately with [ErrNoMessage]. If dst is shorter than the
// stored message Read fails with [ErrBufferTooSmall] and copies nothing.
func (st *Store) Read(s *Session, dst []byte) (int, error) {
	if err := st.checkSession(s); err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	st.reads.Add(1)

	slot, ok := st.table.Find(s.endpoint, s.channel)
	if !ok {
		st.misses.Add(1)
		return 0, fmt.Errorf("read endpoint %d channel %d: %w", s.endpoint, s.channel, ErrNoMessage)
	}

	n, ok := slot.CopyTo(dst)
	if !ok {
		return 0, fmt.Errorf("read endpoint %d channel %d: %w: need %d bytes, have %d",
			s.endpoint, s.channel, ErrBufferTooSmall, n, len(dst))
	}
	if n == 0 {
		st.misses.Add(1)
		return 0, fmt.Errorf("read endpoint %d channel %d: %w", s.endpoint, s.channel, ErrNoMessage)
	}
	return n, nil
}

// Write replaces the message on the session's channel with msg and returns
// len(msg).
//
// The slot for the channel is created on first write. The replacement is
// atomic with respect to concurrent readers. Messages must be between 1 and
// [Store.BufferSize] bytes; anything else fails with [ErrInvalidArgument] and
// leaves the stored message unchanged.
func (st *Store) Write(s *Session, msg []byte) (int, error) {
	if err := st.checkSession(s); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	if len(msg) == 0 || len(msg) > st.table.BufferSize() {
		return 0, fmt.Errorf("write endpoint %d channel %d: %w: message length %d outside [1, %d]",
			s.endpoint, s.channel, ErrInvalidArgument, len(msg), st.table.BufferSize())
	}

	slot, err := st.table.GetOrCreate(s.endpoint, s.channel)
	if err != nil {
		if errors.Is(err, table.ErrFull) {
			st.logger.Warn("slot allocation failed",
				"endpoint", s.endpoint,
				"channel", s.channel,
				"error", err,
			)
			return 0, fmt.Errorf("write endpoint %d channel %d: %w: %v", s.endpoint, s.channel, ErrOutOfMemory, err)
		}
		return 0, fmt.Errorf("write endpoint %d channel %d: %w: %v", s.endpoint, s.channel, ErrInvalidArgument, err)
	}

	if err := st.table.Replace(slot, msg); err != nil {
		return 0, fmt.Errorf("write endpoint %d channel %d: %w: %v", s.endpoint, s.channel, ErrInvalidArgument, err)
	}
	return len(msg), nil
}

// Subscribe returns a channel of write [Event] values. Slow consumers miss
// events rather than stall writers. Caller must call [Store.Unsubscribe].
func (st *Store) Subscribe() <-chan Event { return st.table.Subscribe() }

// Unsubscribe ends a subscription made with [Store.Subscribe].
func (st *Store) Unsubscribe(ch <-chan Event) { st.table.Unsubscribe(ch) }

// Stats returns a snapshot of store counters.
func (st *Store) Stats() Stats {
	st.mu.Lock()
	sessions := st.sessions
	st.mu.Unlock()

	return Stats{
		Stats:    st.table.Stats(),
		Sessions: sessions,
		Reads:    st.reads.Load(),
		Misses:   st.misses.Load(),
	}
}

// Teardown releases every stored message on every endpoint.
//
// It fails with [ErrInvalidState] while any session is open. Once torn down
// the store refuses new sessions with [ErrClosed]. Calling Teardown again is
// a no-op.
func (st *Store) Teardown() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil
	}
	if st.sessions > 0 {
		return fmt.Errorf("teardown: %w: %d sessions still open", ErrInvalidState, st.sessions)
	}
	stats := st.table.Stats()
	st.table.Teardown()
	st.closed = true
	st.logger.Info("store torn down", "slots", stats.Slots, "endpoints", stats.Endpoints)
	return nil
}
