// Package luaruntime embeds a Lua interpreter in a Go process and bridges
// objects across the boundary in both directions.
//
// A session owns one embedded Lua state and makes it safe to enter from
// multiple goroutines: Lua values can be held and used from Go without
// use-after-free, Go objects can be called, indexed and iterated from Lua
// as first-class values, and Lua coroutines map onto Go iterators.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	luaruntime/          Root package with shared Meter/Releaser interfaces
//	├── runtime/         High-level session API, proxies, coroutine bridge,
//	│                    attribute policies, host object wrappers
//	├── engine/          gopher-lua integration: reentrant session lock,
//	│                    compile/call entry points, memory accounting,
//	│                    engine-variant registry
//	├── transcoder/      Bidirectional value marshaling between Go and Lua
//	├── resource/        Foreign and host handle tables
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Create a session and evaluate Lua code:
//
//	rt, err := runtime.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	v, err := rt.Eval("1+1")
//	fmt.Println(v) // 2
//
// Hold a Lua function as a Go value and call it later:
//
//	fn, _ := rt.Eval("function(a, b) return a+b end")
//	sum, _ := fn.(*runtime.Function).Call(2, 3) // 5
//
// Share a Go map with Lua by reference:
//
//	cfg := map[string]any{"retries": 3}
//	g, _ := rt.Globals()
//	g.Set("cfg", cfg)
//	rt.Execute(`cfg.retries = cfg.retries + 1`) // visible in cfg
//
// # Thread Safety
//
// The embedded state is single-threaded by construction. Any goroutine may
// call into a session; entries serialize on the session's reentrant lock,
// so a host callback invoked by Lua can call back into the same session on
// the same goroutine without deadlocking. No partial Lua call from one
// goroutine is ever visible mid-execution to another.
//
// # Lifetimes
//
// Lua values held from Go (tables, functions, coroutines) are
// reference-counted proxies backed by a per-session handle table. Closing
// the session force-invalidates every outstanding handle: values already
// fetched remain usable, but any operation that re-enters the engine
// reports a dead-reference error instead of crashing.
//
// # Limits
//
// There is no mid-call cancellation primitive. A long-running Lua call can
// only be bounded in advance via the session's memory budget or by the
// script's own cooperative checks.
package luaruntime
