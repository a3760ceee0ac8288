package luaruntime

// Meter accounts for bytes the bridge materializes in the embedded heap.
// The engine's MemoryMeter is the standard implementation.
type Meter interface {
	// Charge records n bytes; it returns an out-of-memory error when the
	// configured budget would be exceeded.
	Charge(n int64) error

	// Credit returns n bytes to the budget.
	Credit(n int64)
}

// Releaser is implemented by proxies that hold a counted reference into
// the embedded heap and can drop it explicitly.
type Releaser interface {
	Release()
}
