package twitchevents

import (
	"sync"
)

// Handle identifies a Client held by Handles. The low 32 bits are the slot index, the
// high 32 bits the slot's generation, so a handle is never reused after Dispose.
// The zero Handle is never valid.
type Handle uint64

func newHandle(slot, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(slot))
}

func (h Handle) slot() uint32       { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

type handleSlot struct {
	generation uint32
	client     *Client
}

// Handles owns Clients on behalf of callers that can only pass integers and strings,
// such as a game engine binding. All methods are safe for concurrent use.
type Handles struct {
	opts Options

	mu    sync.Mutex
	slots []handleSlot
	free  []uint32

	construct func(record string, opts Options) (*Client, error)
}

// NewHandles returns an empty table. Every Client it constructs uses opts.
func NewHandles(opts Options) *Handles {
	return &Handles{opts: opts, construct: New}
}

// Construct starts a Client for record and returns its handle.
func (h *Handles) Construct(record string) (Handle, error) {
	c, err := h.construct(record, h.opts)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, handleSlot{})
	}

	s := &h.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.client = c
	return newHandle(idx, s.generation), nil
}

// Poll returns the next event's kind and JSON body. Both are empty when no event is
// queued. A stale or unknown handle returns ErrInvalidHandle.
func (h *Handles) Poll(handle Handle) (kind, body string, err error) {
	c, ok := h.lookup(handle)
	if !ok {
		return "", "", ErrInvalidHandle
	}

	ev, ok, err := c.Poll()
	if err != nil || !ok {
		return "", "", err
	}
	return ev.Kind, ev.Body, nil
}

// State returns the session state name, or ErrInvalidHandle.
func (h *Handles) State(handle Handle) (string, error) {
	c, ok := h.lookup(handle)
	if !ok {
		return "", ErrInvalidHandle
	}
	return c.State().String(), nil
}

// Dispose stops the Client and invalidates handle. Disposing a stale handle is a no-op.
func (h *Handles) Dispose(handle Handle) error {
	h.mu.Lock()
	c, ok := h.lookupLocked(handle)
	if ok {
		idx := handle.slot()
		h.slots[idx].client = nil
		h.free = append(h.free, idx)
	}
	h.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Dispose()
}

// Close disposes every live Client.
func (h *Handles) Close() error {
	h.mu.Lock()
	var live []Handle
	for i, s := range h.slots {
		if s.client != nil {
			live = append(live, newHandle(uint32(i), s.generation))
		}
	}
	h.mu.Unlock()

	var firstErr error
	for _, handle := range live {
		if err := h.Dispose(handle); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len is the number of live Clients.
func (h *Handles) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.slots) - len(h.free)
}

func (h *Handles) lookup(handle Handle) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookupLocked(handle)
}

func (h *Handles) lookupLocked(handle Handle) (*Client, bool) {
	idx := handle.slot()
	if handle == 0 || int(idx) >= len(h.slots) {
		return nil, false
	}
	s := h.slots[idx]
	if s.client == nil || s.generation != handle.generation() {
		return nil, false
	}
	return s.client, true
}
