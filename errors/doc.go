// Package errors provides structured error types for the lua-runtime bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: field path, Go/Lua type
// names, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("config", "port").
//		GoType("chan int").
//		Detail("channels cannot be deep-copied").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Overflow(errors.PhaseEncode, v, "lua number")
//	err := errors.DeadReference("table proxy", sessionID)
//
// Errors raised by Lua code are carried across the boundary as *LuaError,
// which preserves the raised Lua value losslessly (including non-string
// values) and attaches a traceback reconstructed most-recent-frame-last.
//
// All errors implement the standard error interface and support
// errors.Is/As. The taxonomy:
//
//	KindSyntax         compile failure, detail carries source location
//	KindRuntime        Lua execution failure (see LuaError)
//	KindTypeMismatch   no valid representation on the other side
//	KindOverflow       numeric magnitude with no (working) handler
//	KindOutOfMemory    memory budget exceeded
//	KindBadKey         invalid container key during marshaling
//	KindDeadReference  handle whose owning session was torn down
//	KindMisuse         programmer error: lock misuse, bad configuration
//	KindDenied         attribute access rejected by policy
//	KindAbsent         attribute does not exist (maps to the Lua nil idiom)
//	KindNotCallable    call on a value with no call protocol
//	KindDone           coroutine exhaustion signal (ErrDone)
package errors
