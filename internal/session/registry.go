// Package session tracks the UI panels that can receive console output.
//
// The registry never owns a panel. Each registration gets a session ID, which
// is never reused, and a Handle that names a slot plus the slot's generation.
// Slots are recycled after Unregister with a bumped generation, so a Handle
// held across an Unregister fails its liveness check instead of reaching a
// different panel.
package session

import (
	"sync"
)

// ID identifies a registered session. Zero means "no session".
type ID uint64

// None is the reserved "no session" ID.
const None ID = 0

// Panel receives text produced for a session. AppendOutput is always called
// on the UI thread.
type Panel interface {
	AppendOutput(text string)
}

// Handle is a non-owning reference to a registered panel.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle, which never resolves.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type slot struct {
	gen   uint32
	id    ID
	panel Panel
}

// Registry maps session IDs to panels.
type Registry struct {
	mu     sync.Mutex
	nextID ID
	slots  []slot
	free   []uint32
	byID   map[ID]Handle
}

// NewRegistry creates an empty registry. The first ID issued is 1.
func NewRegistry() *Registry {
	return &Registry{
		nextID: 1,
		byID:   make(map[ID]Handle),
	}
}

// Register stores panel and returns its new ID. A nil panel is not stored
// and yields None.
func (r *Registry) Register(panel Panel) ID {
	if panel == nil {
		return None
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.id = id
	s.panel = panel

	r.byID[id] = Handle{index: idx, gen: s.gen}
	return id
}

// Unregister removes the session. It reports whether the session existed.
func (r *Registry) Unregister(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	s := &r.slots[h.index]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.id = None
	s.panel = nil
	r.free = append(r.free, h.index)
	return true
}

// Lookup returns the handle of a registered session.
func (r *Registry) Lookup(id ID) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	return h, ok
}

// Resolve returns the panel behind h if the session is still registered.
func (r *Registry) Resolve(h Handle) (Panel, bool) {
	if h.IsZero() {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := r.slots[h.index]
	if s.gen != h.gen || s.panel == nil {
		return nil, false
	}
	return s.panel, true
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id ID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
