package engine

import (
	"sync"

	"github.com/wippyai/lua-runtime/errors"
)

// MemoryMeter enforces an optional byte budget on the embedded session.
//
// gopher-lua does not expose a raw allocator hook, so the budget is charged
// at the bridge's own materialization points: every table, string and
// userdata the boundary creates in the Lua heap, plus handle-table slots.
// A zero max means unlimited.
//
// Lowering the budget below current usage does not retroactively fail;
// the new ceiling applies to the next Charge.
type MemoryMeter struct {
	mu   sync.Mutex
	used int64
	max  int64
}

// NewMemoryMeter creates a meter with the given ceiling (0 = unlimited).
func NewMemoryMeter(max int64) *MemoryMeter {
	return &MemoryMeter{max: max}
}

// Charge records n bytes of boundary allocation. When the budget would be
// exceeded the charge is refused with a distinct out-of-memory error and
// usage is left unchanged.
func (m *MemoryMeter) Charge(n int64) error {
	if n <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.max > 0 && m.used+n > m.max {
		return errors.OutOfMemory(m.used, m.max)
	}
	m.used += n
	return nil
}

// Credit returns n bytes to the budget, e.g. when a handle slot is released.
func (m *MemoryMeter) Credit(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.used -= n
	if m.used < 0 {
		m.used = 0
	}
	m.mu.Unlock()
}

// Used returns the bytes currently charged.
func (m *MemoryMeter) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Max returns the current ceiling (0 = unlimited).
func (m *MemoryMeter) Max() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max
}

// SetMax replaces the ceiling. Takes effect on the next Charge.
func (m *MemoryMeter) SetMax(max int64) {
	m.mu.Lock()
	m.max = max
	m.mu.Unlock()
}
