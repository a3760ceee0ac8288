package engine

import (
	"strings"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/errors"
)

// Config controls engine construction.
type Config struct {
	// Variant selects an engine family from the registry; empty picks the
	// registry's best variant.
	Variant string

	// Registry supplies engine builds; nil uses DefaultVariants.
	Registry *VariantRegistry

	// Options is passed through to the Lua state factory.
	Options lua.Options

	// MemoryBudget is the byte ceiling for boundary allocations
	// (0 = unlimited).
	MemoryBudget int64
}

// Engine owns exactly one Lua state, the session lock that guards every
// entry into it, and the memory meter. All methods that touch the state
// require the caller to hold the lock; the high-level session in package
// runtime enforces that.
type Engine struct {
	L     *lua.LState
	lock  SessionLock
	meter *MemoryMeter
	id    string

	closed bool
}

// New builds an engine from the selected variant.
func New(cfg Config) (*Engine, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = DefaultVariants
	}

	var (
		v   *Variant
		err error
	)
	if cfg.Variant != "" {
		v, err = reg.Lookup(cfg.Variant)
	} else {
		v, err = reg.Best()
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{
		L:     v.New(cfg.Options),
		meter: NewMemoryMeter(cfg.MemoryBudget),
		id:    uuid.NewString(),
	}
	Logger().Debug("engine created",
		zap.String("session", e.id),
		zap.String("variant", v.Family),
		zap.String("version", v.Version.String()))
	return e, nil
}

// ID returns the session identifier used in logs and dead-reference errors.
func (e *Engine) ID() string { return e.id }

// Lock returns the session lock guarding this engine.
func (e *Engine) Lock() *SessionLock { return &e.lock }

// Meter returns the memory meter.
func (e *Engine) Meter() *MemoryMeter { return e.meter }

// Closed reports whether Close has run.
func (e *Engine) Closed() bool { return e.closed }

// Close tears down the Lua state. Caller must hold the lock.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.L.Close()
	Logger().Debug("engine closed", zap.String("session", e.id))
}

// CompileString compiles Lua source under the given chunk name. Syntax
// failures come back as the syntax error kind with the compiler's message
// (which includes the source location); the state is left unharmed.
func (e *Engine) CompileString(source, name string) (*lua.LFunction, error) {
	fn, err := e.L.Load(strings.NewReader(source), name)
	if err != nil {
		return nil, e.MapError(errors.PhaseCompile, err)
	}
	return fn, nil
}

// Call invokes a Lua callable in protected mode and collects all results.
func (e *Engine) Call(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	L := e.L
	base := L.GetTop()
	err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, args...)
	if err != nil {
		L.SetTop(base)
		return nil, e.MapError(errors.PhaseRuntime, err)
	}
	n := L.GetTop() - base
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(base + i + 1)
	}
	L.SetTop(base)
	return results, nil
}

// CallGlobal resolves a dotted global path ("coroutine.resume") and calls it.
func (e *Engine) CallGlobal(path string, args ...lua.LValue) ([]lua.LValue, error) {
	fn, err := e.GetGlobalPath(path)
	if err != nil {
		return nil, err
	}
	return e.Call(fn, args...)
}

// GetGlobalPath resolves a dotted global path to a value.
func (e *Engine) GetGlobalPath(path string) (lua.LValue, error) {
	parts := strings.Split(path, ".")
	v := e.L.GetGlobal(parts[0])
	for _, p := range parts[1:] {
		if v == lua.LNil {
			break
		}
		v = e.L.GetField(v, p)
	}
	if v == lua.LNil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotCallable).
			Detail("global %q is not defined", path).Build()
	}
	return v, nil
}

// MapError converts a gopher-lua error into the bridge taxonomy.
//
// A host error tunneled through the Lua unwinder (see RaiseHostError) is
// returned as the original Go error object, even when Lua code caught and
// rethrew it. Everything else raised by Lua becomes *errors.LuaError with
// the raised value preserved and the traceback reordered
// most-recent-frame-last.
func (e *Engine) MapError(phase errors.Phase, err error) error {
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return errors.Wrap(phase, errors.KindRuntime, err, "lua call failed")
	}

	switch apiErr.Type {
	case lua.ApiErrorSyntax, lua.ApiErrorFile:
		return errors.Syntax(apiErr.Object.String(), apiErr)
	}

	if orig := unboxHostError(apiErr.Object); orig != nil {
		return orig
	}

	return &errors.LuaError{
		Value:     Scalar(apiErr.Object),
		Traceback: errors.ReorderTraceback(apiErr.StackTrace),
	}
}

// hostErrorBox tunnels a Go error through the Lua unwinder without
// flattening it to a string.
type hostErrorBox struct {
	err error
}

// RaiseHostError raises err inside the given Lua thread so that it
// propagates through the Lua call stack and re-emerges as the original
// error object at the top-level host call site. Never returns.
func RaiseHostError(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = &hostErrorBox{err: err}
	L.Error(ud, 0)
}

func unboxHostError(lv lua.LValue) error {
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil
	}
	box, ok := ud.Value.(*hostErrorBox)
	if !ok {
		return nil
	}
	return box.err
}

// HostErrorFrom recovers a tunneled host error from a raised Lua value,
// or nil when the value is not a host error box. Used by callers that
// receive error values as data, e.g. the false branch of coroutine.resume.
func HostErrorFrom(lv lua.LValue) error {
	return unboxHostError(lv)
}

// Scalar converts scalar Lua values to their Go equivalents and keeps
// everything else as the live Lua value, so non-string error objects
// survive the crossing losslessly.
func Scalar(lv lua.LValue) any {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	default:
		return lv
	}
}
