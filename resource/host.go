package resource

import "sync"

// Protocol says which host protocol governs a wrapper exposed to Lua.
// Auto is resolved to a concrete protocol once at wrap time.
type Protocol uint8

const (
	ProtocolAuto Protocol = iota
	ProtocolCall
	ProtocolItem
	ProtocolAttr
)

func (p Protocol) String() string {
	switch p {
	case ProtocolCall:
		return "call"
	case ProtocolItem:
		return "item"
	case ProtocolAttr:
		return "attr"
	default:
		return "auto"
	}
}

// HostTable is the inverse of ForeignTable: it tracks host Go values that
// have been wrapped for the Lua side, recording the protocol chosen at
// wrap time. An entry keeps its host value alive while the Lua side can
// reach the wrapper; Remove drops it when the wrapper is collected, and
// Close force-releases everything outstanding at teardown.
type HostTable struct {
	mu      sync.Mutex
	entries map[Handle]hostEntry
	next    Handle
	closed  bool
}

type hostEntry struct {
	value    any
	protocol Protocol
}

// NewHostTable creates an empty table.
func NewHostTable() *HostTable {
	return &HostTable{entries: make(map[Handle]hostEntry)}
}

// Insert registers a wrapped host value and returns its handle.
func (t *HostTable) Insert(value any, p Protocol) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	t.next++
	t.entries[t.next] = hostEntry{value: value, protocol: p}
	return t.next
}

// Get returns the wrapped value and its protocol.
func (t *HostTable) Get(h Handle) (any, Protocol, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok {
		return nil, ProtocolAuto, false
	}
	return e.value, e.protocol, true
}

// Remove drops a wrapper registration.
func (t *HostTable) Remove(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[h]; !ok {
		return false
	}
	delete(t.entries, h)
	return true
}

// Len returns the number of live wrappers.
func (t *HostTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close force-releases every wrapper not yet removed.
func (t *HostTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for h := range t.entries {
		delete(t.entries, h)
	}
}
