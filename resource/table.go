package resource

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ForeignTable is the per-session registry of Lua values held from the
// host side. Each slot carries a strong count equal to the number of live
// host proxies pointing at it; the slot is removed - letting the Lua value
// become collectible - exactly when the count reaches zero.
//
// Closing the table force-invalidates every slot synchronously; subsequent
// Get calls report failure so callers can surface dead-reference errors.
// Release stays safe after Close so proxy finalizers never crash.
type ForeignTable struct {
	mu        sync.Mutex
	entries   map[Handle]*foreignEntry
	next      Handle
	closed    bool
	observers []Observer
}

type foreignEntry struct {
	value  lua.LValue
	strong int32
}

// NewForeignTable creates an empty table.
func NewForeignTable() *ForeignTable {
	return &ForeignTable{
		entries: make(map[Handle]*foreignEntry),
	}
}

// Insert registers a Lua value with a strong count of one and returns its
// handle. Returns 0 when the table is closed.
func (t *ForeignTable) Insert(v lua.LValue) Handle {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}
	t.next++
	h := t.next
	t.entries[h] = &foreignEntry{value: v, strong: 1}
	t.mu.Unlock()

	t.notify(Event{Handle: h, Type: EventCreated, Strong: 1})
	return h
}

// Get retrieves the Lua value for a live handle.
func (t *ForeignTable) Get(h Handle) (lua.LValue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false
	}
	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Retain increments the strong count for a live handle.
func (t *ForeignTable) Retain(h Handle) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	e, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return false
	}
	e.strong++
	strong := e.strong
	t.mu.Unlock()

	t.notify(Event{Handle: h, Type: EventRetained, Strong: strong})
	return true
}

// Release decrements the strong count and removes the slot at zero.
// Reports whether the slot was removed. Safe after Close.
func (t *ForeignTable) Release(h Handle) bool {
	t.mu.Lock()
	e, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return false
	}
	e.strong--
	if e.strong > 0 {
		strong := e.strong
		t.mu.Unlock()
		t.notify(Event{Handle: h, Type: EventReleased, Strong: strong})
		return false
	}
	delete(t.entries, h)
	t.mu.Unlock()

	t.notify(Event{Handle: h, Type: EventRemoved})
	return true
}

// Len returns the number of live slots.
func (t *ForeignTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Closed reports whether Close has run.
func (t *ForeignTable) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close force-invalidates every slot. The owning session's Lua state is
// being torn down, so nothing can be read through the table anymore.
func (t *ForeignTable) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for h, e := range t.entries {
		e.value = nil
		delete(t.entries, h)
	}
	t.mu.Unlock()
}

// Subscribe adds an observer for lifecycle events.
func (t *ForeignTable) Subscribe(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

func (t *ForeignTable) notify(e Event) {
	t.mu.Lock()
	obs := t.observers
	t.mu.Unlock()
	for _, o := range obs {
		o.OnHandleEvent(e)
	}
}
