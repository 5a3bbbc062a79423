package table

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	tbl := New(Options{})

	assert.Equal(t, DefaultMaxEndpoints, tbl.MaxEndpoints())
	assert.Equal(t, DefaultBufferSize, tbl.BufferSize())
	assert.Equal(t, Stats{}, tbl.Stats())
}

func TestFind_NeverAllocates(t *testing.T) {
	tbl := New(Options{})

	_, ok := tbl.Find(3, 7)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Stats().Slots)
}

func TestGetOrCreate_CreatesEmptySlot(t *testing.T) {
	tbl := New(Options{})

	s, err := tbl.GetOrCreate(3, 7)
	require.NoError(t, err)
	assert.Equal(t, EndpointID(3), s.Endpoint)
	assert.Equal(t, ChannelID(7), s.Channel)
	assert.Nil(t, s.Load())
	n, ok := s.CopyTo(nil)
	assert.True(t, ok)
	assert.Equal(t, 0, n)

	found, ok := tbl.Find(3, 7)
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestGetOrCreate_ReturnsExisting(t *testing.T) {
	tbl := New(Options{})

	first, err := tbl.GetOrCreate(1, 42)
	require.NoError(t, err)
	second, err := tbl.GetOrCreate(1, 42)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, tbl.Stats().Slots)
}

func TestGetOrCreate_InvalidKeys(t *testing.T) {
	tbl := New(Options{MaxEndpoints: 4})

	tests := []struct {
		name string
		ep   EndpointID
		ch   ChannelID
	}{
		{"channel zero", 0, 0},
		{"endpoint at bound", 4, 1},
		{"endpoint above bound", 1000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tbl.GetOrCreate(tt.ep, tt.ch)
			require.ErrorIs(t, err, ErrInvalidKey)

			_, ok := tbl.Find(tt.ep, tt.ch)
			assert.False(t, ok)
		})
	}
	assert.Equal(t, 0, tbl.Stats().Slots)
}

func TestGetOrCreate_SlotLimit(t *testing.T) {
	tbl := New(Options{MaxSlots: 2})

	_, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)
	_, err = tbl.GetOrCreate(5, 1)
	require.NoError(t, err)

	_, err = tbl.GetOrCreate(0, 2)
	require.ErrorIs(t, err, ErrFull)

	// existing slots stay reachable at the limit
	_, err = tbl.GetOrCreate(0, 1)
	require.NoError(t, err)
}

func TestReplace_LastWriteWins(t *testing.T) {
	tbl := New(Options{})
	s, err := tbl.GetOrCreate(3, 7)
	require.NoError(t, err)

	require.NoError(t, tbl.Replace(s, []byte("hello")))
	assert.Equal(t, []byte("hello"), s.Load())

	require.NoError(t, tbl.Replace(s, []byte("hi")))
	assert.Equal(t, []byte("hi"), s.Load())

	st := tbl.Stats()
	assert.Equal(t, uint64(2), st.Bytes)
	assert.Equal(t, uint64(2), st.Writes)
}

func TestReplace_CopiesInput(t *testing.T) {
	tbl := New(Options{})
	s, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)

	msg := []byte("abc")
	require.NoError(t, tbl.Replace(s, msg))
	msg[0] = 'z'

	assert.Equal(t, []byte("abc"), s.Load())
}

func TestReplace_TooLargeLeavesSlotUnchanged(t *testing.T) {
	tbl := New(Options{BufferSize: 4})
	s, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)
	require.NoError(t, tbl.Replace(s, []byte("ok")))

	err = tbl.Replace(s, []byte("too long"))
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, []byte("ok"), s.Load())
}

func TestSlot_CopyTo(t *testing.T) {
	tbl := New(Options{})
	s, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)
	require.NoError(t, tbl.Replace(s, []byte("hello")))

	small := make([]byte, 3)
	n, ok := s.CopyTo(small)
	assert.False(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{0, 0, 0}, small)

	big := make([]byte, 10)
	n, ok = s.CopyTo(big)
	assert.True(t, ok)
	assert.Equal(t, "hello", string(big[:n]))
}

func TestReplace_EventTimestamp(t *testing.T) {
	tbl := New(Options{})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tbl.nowFn = func() time.Time { return fixed }

	events := tbl.Subscribe()
	defer tbl.Unsubscribe(events)

	s, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)
	require.NoError(t, tbl.Replace(s, []byte("x")))

	ev := <-events
	assert.True(t, ev.WrittenAt.Equal(fixed))
	assert.Equal(t, 1, ev.Length)
}

func TestChannelsAreIsolated(t *testing.T) {
	tbl := New(Options{})

	a, err := tbl.GetOrCreate(2, 1)
	require.NoError(t, err)
	b, err := tbl.GetOrCreate(2, 2)
	require.NoError(t, err)
	other, err := tbl.GetOrCreate(3, 1)
	require.NoError(t, err)

	require.NoError(t, tbl.Replace(a, []byte("one")))
	require.NoError(t, tbl.Replace(b, []byte("two")))
	require.NoError(t, tbl.Replace(other, []byte("three")))

	assert.Equal(t, "one", string(a.Load()))
	assert.Equal(t, "two", string(b.Load()))
	assert.Equal(t, "three", string(other.Load()))
	assert.Equal(t, 2, tbl.Stats().Endpoints)
}

func TestTeardown_Idempotent(t *testing.T) {
	tbl := New(Options{})
	for ch := ChannelID(1); ch <= 5; ch++ {
		s, err := tbl.GetOrCreate(0, ch)
		require.NoError(t, err)
		require.NoError(t, tbl.Replace(s, []byte("data")))
	}
	sub := tbl.Subscribe()

	tbl.Teardown()
	tbl.Teardown()

	_, ok := tbl.Find(0, 1)
	assert.False(t, ok)
	st := tbl.Stats()
	assert.Equal(t, 0, st.Slots)
	assert.Equal(t, 0, st.Endpoints)
	assert.Equal(t, uint64(0), st.Bytes)

	_, open := <-sub
	assert.False(t, open, "subscription should be closed by teardown")
}

func TestSubscribe_ReceivesEvents(t *testing.T) {
	tbl := New(Options{})
	ch := tbl.Subscribe()
	defer tbl.Unsubscribe(ch)

	s, err := tbl.GetOrCreate(3, 7)
	require.NoError(t, err)
	require.NoError(t, tbl.Replace(s, []byte("hello")))

	select {
	case ev := <-ch:
		assert.Equal(t, EndpointID(3), ev.Endpoint)
		assert.Equal(t, ChannelID(7), ev.Channel)
		assert.Equal(t, 5, ev.Length)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	tbl := New(Options{})
	ch := tbl.Subscribe()

	tbl.Unsubscribe(ch)
	tbl.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	tbl := New(Options{})
	_ = tbl.Subscribe()

	s, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = tbl.Replace(s, []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Replace() blocked on slow subscriber")
	}
}

func TestConcurrentGetOrCreate_SingleSlotPerKey(t *testing.T) {
	tbl := New(Options{})

	var wg sync.WaitGroup
	results := make([]*Slot, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := tbl.GetOrCreate(9, 99)
			if err == nil {
				results[i] = s
			}
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		require.NotNil(t, s)
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, 1, tbl.Stats().Slots)
}

func TestConcurrentReplace_NoTornReads(t *testing.T) {
	tbl := New(Options{})
	s, err := tbl.GetOrCreate(0, 1)
	require.NoError(t, err)

	// every message is a run of one repeated byte; a torn read mixes two
	msgs := make([][]byte, 8)
	for i := range msgs {
		msgs[i] = bytes.Repeat([]byte{byte('a' + i)}, 64+i*8)
	}
	require.NoError(t, tbl.Replace(s, msgs[0]))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				_ = tbl.Replace(s, msgs[(i+w)%len(msgs)])
			}
		}(w)
	}

	errs := make(chan error, 1)
	buf := make([]byte, DefaultBufferSize)
	for i := 0; i < 5000; i++ {
		n, ok := s.CopyTo(buf)
		if !ok {
			errs <- fmt.Errorf("CopyTo() reported short buffer for %d bytes", n)
			break
		}
		got := buf[:n]
		if !bytes.Equal(got, bytes.Repeat(got[:1], n)) {
			errs <- fmt.Errorf("torn read: %q", got)
			break
		}
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
}
