// Package transcoder converts values between the host's dynamic model and
// the embedded Lua value model.
//
// # Conversion Rules
//
// Primitive scalars (nil, booleans, strings/bytes, numbers) convert
// directly with no handle allocation. Integral values whose magnitude
// exceeds 2^53 - the largest integer a Lua 5.1 number represents exactly -
// invoke the installed overflow handler; absent a handler they fail with
// the overflow kind. Handler output is re-marshaled exactly once.
//
// Host containers (maps, slices, structs) pass by reference by default:
// the Lua side sees a wrapper whose mutations are visible through the
// original Go object. Structural copy is explicit:
//
//	tc.Encode(v, transcoder.Reference) // wrap, share mutations
//	tc.Encode(v, transcoder.Shallow)   // copy one level
//	tc.Encode(v, transcoder.Deep)      // copy recursively
//
// Deep copy collapses reference cycles and decides "same container" by
// object identity, never value equality.
//
// Lua tables, functions and threads decode to host proxies via the
// session's WrapForeign hook; userdata wrapping a host object decodes to
// the original object, preserving identity.
//
// # The Nil Sentinel
//
// Lua tables cannot hold nil keys, so the host's nil used as a key maps to
// a per-session sentinel userdata and back. Absent-key and
// present-with-nil-value stay distinguishable in both directions.
//
// # Protocol Adapters
//
// AsFunction, AsItemGetter and AsAttrGetter force which host protocol
// governs a wrapper, overriding the capability detection done at wrap
// time:
//
//	rt.Globals().Set("lookup", transcoder.AsItemGetter(myMap))
package transcoder
