package table

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxEndpoints is the endpoint range used when Options leaves it unset.
	DefaultMaxEndpoints = 256

	// DefaultBufferSize is the message bound used when Options leaves it unset.
	DefaultBufferSize = 128

	// subscriberBuffer is the per-subscriber event backlog before drops.
	subscriberBuffer = 100
)

var (
	// ErrInvalidKey is returned for channel 0 or an endpoint outside the table range.
	ErrInvalidKey = errors.New("invalid slot key")

	// ErrFull is returned by GetOrCreate when the slot limit has been reached.
	ErrFull = errors.New("slot limit reached")

	// ErrTooLarge is returned by Replace for messages above the buffer size.
	ErrTooLarge = errors.New("message exceeds buffer size")
)

// Options configures a [Table].
type Options struct {
	MaxEndpoints int // endpoint range is [0, MaxEndpoints) (default: 256)
	BufferSize   int // largest storable message in bytes (default: 128)
	MaxSlots     int // total slots across all endpoints (0 = unlimited)
}

func (o Options) withDefaults() Options {
	if o.MaxEndpoints <= 0 {
		o.MaxEndpoints = DefaultMaxEndpoints
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxSlots < 0 {
		o.MaxSlots = 0
	}
	return o
}

// Event describes one completed replacement of a slot's message.
type Event struct {
	Endpoint  EndpointID `json:"endpoint"`
	Channel   ChannelID  `json:"channel"`
	Length    int        `json:"length"`
	WrittenAt time.Time  `json:"written_at"`
}

// Stats is a point-in-time snapshot of table counters.
type Stats struct {
	Endpoints int    `json:"endpoints"`
	Slots     int    `json:"slots"`
	Bytes     uint64 `json:"bytes"`
	Writes    uint64 `json:"writes"`
}

// Table owns every [Slot] for a range of endpoints.
//
// Table is safe for concurrent use. Lookups on different endpoints never
// share a lock; slot contents are replaced atomically and need no lock at all.
type Table struct {
	opts   Options
	shards []endpointShard
	nowFn  func() time.Time

	slots  atomic.Int64
	bytes  atomic.Uint64
	writes atomic.Uint64

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

type endpointShard struct {
	mu    sync.RWMutex
	slots map[ChannelID]*Slot
}

// New creates an empty [Table]. No slot exists until the first write.
func New(opts Options) *Table {
	opts = opts.withDefaults()
	return &Table{
		opts:        opts,
		shards:      make([]endpointShard, opts.MaxEndpoints),
		nowFn:       time.Now,
		subscribers: make(map[chan Event]struct{}),
	}
}

// MaxEndpoints returns the size of the endpoint range.
func (t *Table) MaxEndpoints() int { return t.opts.MaxEndpoints }

// BufferSize returns the largest message a slot can hold.
func (t *Table) BufferSize() int { return t.opts.BufferSize }

func (t *Table) shardFor(ep EndpointID, ch ChannelID) (*endpointShard, error) {
	if ch == 0 {
		return nil, fmt.Errorf("%w: channel 0 is reserved", ErrInvalidKey)
	}
	if int(ep) >= len(t.shards) {
		return nil, fmt.Errorf("%w: endpoint %d outside [0, %d)", ErrInvalidKey, ep, len(t.shards))
	}
	return &t.shards[ep], nil
}

// Find returns the slot for (ep, ch) if one has been created. It never
// allocates.
func (t *Table) Find(ep EndpointID, ch ChannelID) (*Slot, bool) {
	sh, err := t.shardFor(ep, ch)
	if err != nil {
		return nil, false
	}
	sh.mu.RLock()
	s, ok := sh.slots[ch]
	sh.mu.RUnlock()
	return s, ok
}

// GetOrCreate returns the slot for (ep, ch), inserting an empty one if the
// pair has never been seen. It fails with [ErrFull] once MaxSlots slots exist.
func (t *Table) GetOrCreate(ep EndpointID, ch ChannelID) (*Slot, error) {
	if s, ok := t.Find(ep, ch); ok {
		return s, nil
	}
	sh, err := t.shardFor(ep, ch)
	if err != nil {
		return nil, err
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// another writer may have inserted it between the read and write lock
	if s, ok := sh.slots[ch]; ok {
		return s, nil
	}
	if !t.reserveSlot() {
		return nil, fmt.Errorf("%w: %d slots in use", ErrFull, t.opts.MaxSlots)
	}
	if sh.slots == nil {
		sh.slots = make(map[ChannelID]*Slot)
	}
	s := newSlot(ep, ch)
	sh.slots[ch] = s
	return s, nil
}

// reserveSlot counts one more slot, honouring MaxSlots.
func (t *Table) reserveSlot() bool {
	if t.opts.MaxSlots == 0 {
		t.slots.Add(1)
		return true
	}
	for {
		cur := t.slots.Load()
		if cur >= int64(t.opts.MaxSlots) {
			return false
		}
		if t.slots.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Replace stores msg as the slot's entire content and notifies subscribers.
//
// The replacement is all-or-nothing: concurrent readers observe either the
// previous message or msg. Empty messages are allowed here; the Store rejects
// them before they reach the table.
func (t *Table) Replace(s *Slot, msg []byte) error {
	if len(msg) > t.opts.BufferSize {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(msg), t.opts.BufferSize)
	}
	now := t.nowFn()
	old := s.replace(msg)
	t.addBytesDelta(int64(len(msg) - old))
	t.writes.Add(1)

	t.notifySubscribers(Event{
		Endpoint:  s.Endpoint,
		Channel:   s.Channel,
		Length:    len(msg),
		WrittenAt: now,
	})
	return nil
}

func (t *Table) addBytesDelta(delta int64) {
	if delta >= 0 {
		t.bytes.Add(uint64(delta))
		return
	}
	t.bytes.Add(^uint64(-delta - 1))
}

// Stats returns current table counters.
func (t *Table) Stats() Stats {
	st := Stats{
		Slots:  int(t.slots.Load()),
		Bytes:  t.bytes.Load(),
		Writes: t.writes.Load(),
	}
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.RLock()
		if len(sh.slots) > 0 {
			st.Endpoints++
		}
		sh.mu.RUnlock()
	}
	return st
}

// Teardown releases every slot of every endpoint and closes all
// subscriptions. It is idempotent. The caller must guarantee that no session
// is still using the table.
func (t *Table) Teardown() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		sh.slots = nil
		sh.mu.Unlock()
	}
	t.slots.Store(0)
	t.bytes.Store(0)

	t.subMu.Lock()
	for ch := range t.subscribers {
		delete(t.subscribers, ch)
		close(ch)
	}
	t.subMu.Unlock()
}

// Subscribe returns a channel that receives an [Event] after every
// replacement. The channel is buffered; when it is full further events are
// dropped for that subscriber.
//
// Caller must call [Table.Unsubscribe] when done.
func (t *Table) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	t.subMu.Lock()
	t.subscribers[ch] = struct{}{}
	t.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (t *Table) Unsubscribe(ch <-chan Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for subCh := range t.subscribers {
		if subCh == ch {
			delete(t.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (t *Table) notifySubscribers(ev Event) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()

	for ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}
