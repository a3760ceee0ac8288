// Package runtime is the high-level session API of the bridge.
//
// A Runtime owns one embedded Lua state together with everything that
// makes it safe to use from Go: the reentrant session lock, the foreign
// and host handle tables, the marshaling transcoder, the attribute
// access policy and the memory budget. Sessions are fully independent;
// a proxy created by one session is never valid in another.
//
// # Running code
//
//	rt, err := runtime.New(nil)
//	defer rt.Close()
//
//	sum, err := rt.Eval("21 * 2")          // 42
//	_, err = rt.Execute("answer = 42")     // statements
//	fn, err := rt.Compile("return ...", "chunk")
//
// Eval treats its argument as an expression; Execute as a statement
// chunk. Both accept extra arguments, visible to the chunk as Lua
// varargs.
//
// # Proxies
//
// Lua tables, functions and threads crossing into Go become Table,
// Function and Coroutine proxies. A proxy pins its target in the Lua
// heap until released (explicitly via Release, or by the garbage
// collector for leaked proxies). After the session closes, proxy
// operations report dead-reference errors; a previously rendered
// String() stays readable.
//
// # Host objects in Lua
//
// Go containers and funcs crossing into Lua become userdata wrappers
// governed by a protocol resolved once at wrap time: funcs are callable,
// maps and slices index by item (slices zero-based, Go style), structs
// expose fields and methods as attributes. Attribute access runs through
// the session's policy: a filter can rename or deny, or a handler pair
// can replace reflective access entirely.
//
// The "go" global inside Lua carries the helper surface: go.none,
// go.iter, go.enumerate, the protocol adapters, and optionally go.eval
// and the reflection helpers.
package runtime
