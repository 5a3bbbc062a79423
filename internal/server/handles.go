package server

import (
	"sync"
	"time"

	"github.com/jpalmerr/slotbox"
)

// handle is one open session as seen by the transport. Requests for the same
// handle may arrive concurrently, while a Session is single-owner, so every
// use goes through mu.
type handle struct {
	mu       sync.Mutex
	session  *slotbox.Session
	lastUsed time.Time
	closed   bool
}

// handleRegistry maps session IDs to open handles.
type handleRegistry struct {
	mu      sync.Mutex
	handles map[string]*handle
	nowFn   func() time.Time
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{
		handles: make(map[string]*handle),
		nowFn:   time.Now,
	}
}

func (r *handleRegistry) add(s *slotbox.Session) {
	r.mu.Lock()
	r.handles[s.ID()] = &handle{session: s, lastUsed: r.nowFn()}
	r.mu.Unlock()
}

// with runs fn on the session registered under id while holding the handle
// lock. It reports false if no such handle is open.
func (r *handleRegistry) with(id string, fn func(*slotbox.Session)) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.lastUsed = r.nowFn()
	fn(h.session)
	return true
}

// remove closes and forgets the handle registered under id.
func (r *handleRegistry) remove(id string) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	return h.close()
}

func (h *handle) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	_ = h.session.Close()
	return true
}

// reap closes every handle idle for longer than maxIdle and returns the IDs
// it closed.
func (r *handleRegistry) reap(maxIdle time.Duration) []string {
	cutoff := r.nowFn().Add(-maxIdle)

	r.mu.Lock()
	var idle []*handle
	var ids []string
	for id, h := range r.handles {
		h.mu.Lock()
		stale := h.lastUsed.Before(cutoff)
		h.mu.Unlock()
		if stale {
			idle = append(idle, h)
			ids = append(ids, id)
			delete(r.handles, id)
		}
	}
	r.mu.Unlock()

	for _, h := range idle {
		h.close()
	}
	return ids
}

// closeAll closes every open handle.
func (r *handleRegistry) closeAll() int {
	r.mu.Lock()
	all := r.handles
	r.handles = make(map[string]*handle)
	r.mu.Unlock()

	for _, h := range all {
		h.close()
	}
	return len(all)
}

func (r *handleRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
