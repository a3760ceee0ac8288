// Package engine integrates the embedded Lua interpreter (gopher-lua) and
// owns the three primitives every session is built from: the reentrant
// session lock, the memory meter, and the engine-variant registry.
//
// # Session Lock
//
// A gopher-lua state has no thread-safety guarantee of its own, so every
// entry into the interpreter goes through SessionLock. The lock is
// recursive per owning goroutine: a host callback invoked by Lua may call
// back into the same session on the same goroutine without deadlocking.
//
//	var l engine.SessionLock
//	l.Acquire(true)
//	defer l.Release()
//
// Over-release and cross-goroutine release are misuse errors, never
// silently absorbed.
//
// # Entry Points
//
// Engine wraps one *lua.LState with the two call contracts the bridge
// consumes: CompileString (syntax errors become KindSyntax with source
// location) and Call (protected call collecting all results). Callers must
// hold the session lock.
//
// # Error Crossing
//
// Host errors raised inside Lua-invoked callbacks are tunneled through the
// Lua unwinder with RaiseHostError and come back out of MapError as the
// original Go error object, even across pcall/error rethrow. Lua errors
// become *errors.LuaError with the raised value preserved and the
// traceback reordered most-recent-frame-last.
//
// # Memory
//
// gopher-lua exposes no allocator hook, so MemoryMeter charges the budget
// at the bridge's own materialization points (tables, strings, userdata
// and handle slots created at the boundary).
//
// # Variants
//
// VariantRegistry is the explicit "which engine build" registry: keyed by
// family and semver version, best pick resolved lazily (preferred family
// order, then highest version) and cached. The gopher-lua build registers
// itself in DefaultVariants.
package engine
