// Package resource provides the cross-heap handle tables for one session.
//
// The host and the embedded Lua state each keep references into the other
// side. Every such reference is explicit and counted - no ambient GC
// assumptions cross the boundary.
//
// # Foreign Handles
//
// ForeignTable maps opaque integer handles to Lua values held from Go.
// Each slot's strong count equals the number of live host proxies:
//
//	table := resource.NewForeignTable()
//
//	h := table.Insert(luaValue)   // strong = 1
//	table.Retain(h)               // another proxy shares the slot
//	table.Release(h)              // drops one reference
//	table.Release(h)              // count hits zero, slot removed
//
// A slot is removed exactly when its count reaches zero - never before,
// never leaked after. Close force-invalidates every slot synchronously at
// session teardown; Release remains safe afterwards so proxy finalizers
// never crash on a closed session.
//
// # Host Handles
//
// HostTable tracks Go values wrapped for the Lua side, with the protocol
// (call, item, attribute) chosen once at wrap time. In this bridge both
// heaps share the Go collector, so wrapper liveness follows ordinary Go
// reachability; the table exists for teardown and diagnostics.
//
// # Observers
//
// Register observers to watch handle lifecycle events:
//
//	table.Subscribe(obs) // EventCreated, EventRetained, ...
package resource
