package transcoder

import (
	"math"
	"math/big"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	luaruntime "github.com/wippyai/lua-runtime"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// MaxExactInt is the largest integer magnitude a Lua 5.1 number (an IEEE
// double) represents exactly. Integral values beyond it go through the
// overflow handler.
const MaxExactInt = int64(1) << 53

// CopyMode controls how host containers cross into Lua.
type CopyMode int

const (
	// Reference wraps the container as a host object; mutation through
	// the Lua side mutates the original.
	Reference CopyMode = iota
	// Shallow copies one level into a Lua table; nested containers are
	// passed by reference.
	Shallow
	// Deep copies recursively, collapsing reference cycles.
	Deep
)

// OverflowFunc maps an unrepresentable numeric magnitude to a replacement
// value. The replacement is re-marshaled once; if it is still out of
// range, marshaling fails rather than looping.
type OverflowFunc func(v any) (any, error)

// ForeignValuer is implemented by host proxies that can hand back their
// underlying Lua value, so proxies round-trip by identity.
type ForeignValuer interface {
	ForeignLuaValue() (lua.LValue, error)
}

// HostValued marks userdata wrappers around host values; decoding such a
// wrapper yields the original host object, preserving identity.
type HostValued interface {
	HostValue() any
}

// Transcoder converts values between the host's dynamic model (any) and
// the Lua value model. It is bound to one session; the session supplies
// the wrap hooks and guarantees the session lock is held around every
// call.
type Transcoder struct {
	L *lua.LState

	// WrapForeign turns a Lua table/function/thread into a host proxy.
	WrapForeign func(lv lua.LValue) (any, error)

	// WrapHost turns a host object into a Lua userdata wrapper honoring
	// the given protocol.
	WrapHost func(v any, p resource.Protocol) (lua.LValue, error)

	// Overflow returns the currently installed overflow handler, nil when
	// absent. Read under the session lock on every use, so replacing the
	// handler from either side takes effect immediately.
	Overflow func() OverflowFunc

	// None is the session's nil-key sentinel: the host's untyped nil used
	// as a table key round-trips through this userdata.
	None *lua.LUserData

	// Meter accounts for boundary allocations; nil disables accounting.
	Meter luaruntime.Meter
}

func (t *Transcoder) charge(n int64) error {
	if t.Meter == nil {
		return nil
	}
	return t.Meter.Charge(n)
}

// Encode converts a host value to a Lua value.
func (t *Transcoder) Encode(v any, mode CopyMode) (lua.LValue, error) {
	return t.encode(v, mode, true, nil)
}

// EncodeAll converts a slice of host arguments.
func (t *Transcoder) EncodeAll(vs []any, mode CopyMode) ([]lua.LValue, error) {
	out := make([]lua.LValue, len(vs))
	for i, v := range vs {
		lv, err := t.Encode(v, mode)
		if err != nil {
			return nil, err
		}
		out[i] = lv
	}
	return out, nil
}

// EncodeKey converts a host value for use as a table key. The host's nil
// maps to the session's sentinel so that a nil key is a real, non-identity
// key rather than an error or an accidental "absent" marker.
func (t *Transcoder) EncodeKey(v any) (lua.LValue, error) {
	if v == nil {
		return t.None, nil
	}
	lv, err := t.Encode(v, Reference)
	if err != nil {
		return nil, err
	}
	if lv == lua.LNil {
		return nil, errors.BadKey(errors.PhaseEncode, nil, "key encoded to nil")
	}
	return lv, nil
}

func (t *Transcoder) encode(v any, mode CopyMode, allowOverflow bool, seen map[seenKey]*lua.LTable) (lua.LValue, error) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(x), nil
	case string:
		if err := t.charge(int64(len(x)) + 16); err != nil {
			return nil, err
		}
		return lua.LString(x), nil
	case []byte:
		if err := t.charge(int64(len(x)) + 16); err != nil {
			return nil, err
		}
		return lua.LString(x), nil
	case int:
		return t.encodeInt(int64(x), allowOverflow)
	case int8:
		return lua.LNumber(x), nil
	case int16:
		return lua.LNumber(x), nil
	case int32:
		return lua.LNumber(x), nil
	case int64:
		return t.encodeInt(x, allowOverflow)
	case uint:
		return t.encodeUint(uint64(x), allowOverflow)
	case uint8:
		return lua.LNumber(x), nil
	case uint16:
		return lua.LNumber(x), nil
	case uint32:
		return lua.LNumber(x), nil
	case uint64:
		return t.encodeUint(x, allowOverflow)
	case float32:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	case *big.Int:
		return t.encodeBig(x, allowOverflow)
	case Wrapped:
		return t.WrapHost(x.Value, x.Protocol)
	case lua.LValue:
		return x, nil
	case ForeignValuer:
		return x.ForeignLuaValue()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return t.encodeInt(rv.Int(), allowOverflow)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return t.encodeUint(rv.Uint(), allowOverflow)
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float()), nil
	case reflect.String:
		if err := t.charge(int64(rv.Len()) + 16); err != nil {
			return nil, err
		}
		return lua.LString(rv.String()), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr:
		if mode == Reference {
			return t.WrapHost(v, resource.ProtocolAuto)
		}
		if seen == nil {
			seen = make(map[seenKey]*lua.LTable)
		}
		return t.encodeContainer(rv, mode, seen)
	case reflect.Func, reflect.Chan, reflect.Interface:
		return t.WrapHost(v, resource.ProtocolAuto)
	}

	return nil, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		GoType(reflect.TypeOf(v).String()).
		Detail("no Lua representation").Build()
}

func (t *Transcoder) encodeInt(i int64, allowOverflow bool) (lua.LValue, error) {
	if i <= MaxExactInt && i >= -MaxExactInt {
		return lua.LNumber(i), nil
	}
	if !allowOverflow {
		return nil, errors.Overflow(errors.PhaseEncode, i, "lua number")
	}
	return t.handleOverflow(i)
}

func (t *Transcoder) encodeUint(u uint64, allowOverflow bool) (lua.LValue, error) {
	if u <= uint64(MaxExactInt) {
		return lua.LNumber(u), nil
	}
	if !allowOverflow {
		return nil, errors.Overflow(errors.PhaseEncode, u, "lua number")
	}
	return t.handleOverflow(u)
}

func (t *Transcoder) encodeBig(b *big.Int, allowOverflow bool) (lua.LValue, error) {
	if b.IsInt64() {
		return t.encodeInt(b.Int64(), allowOverflow)
	}
	if !allowOverflow {
		return nil, errors.Overflow(errors.PhaseEncode, b, "lua number")
	}
	return t.handleOverflow(b)
}

// handleOverflow runs the installed handler and re-marshals its output
// exactly once; output that is still out of range fails instead of
// looping.
func (t *Transcoder) handleOverflow(v any) (lua.LValue, error) {
	var h OverflowFunc
	if t.Overflow != nil {
		h = t.Overflow()
	}
	if h == nil {
		return nil, errors.Overflow(errors.PhaseEncode, v, "lua number")
	}
	out, err := h(v)
	if err != nil {
		return nil, errors.New(errors.PhaseEncode, errors.KindOverflow).
			Value(v).Cause(err).Detail("overflow handler failed").Build()
	}
	return t.encode(out, Reference, false, nil)
}

// Decode converts a Lua value to a host value. Tables, functions and
// threads come back as proxies through WrapForeign; userdata wrapping a
// host object unwraps to the original object.
func (t *Transcoder) Decode(lv lua.LValue) (any, error) {
	switch x := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LString:
		return string(x), nil
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && f <= float64(MaxExactInt) && f >= -float64(MaxExactInt) {
			return int64(f), nil
		}
		return f, nil
	case *lua.LUserData:
		if x == t.None {
			return nil, nil
		}
		if hv, ok := x.Value.(HostValued); ok {
			return hv.HostValue(), nil
		}
		return t.WrapForeign(lv)
	case *lua.LTable, *lua.LFunction, *lua.LState:
		return t.WrapForeign(lv)
	case lua.LChannel:
		return (chan lua.LValue)(x), nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		LuaType(lv.Type().String()).
		Detail("no host representation").Build()
}

// DecodeAll converts a slice of Lua results.
func (t *Transcoder) DecodeAll(lvs []lua.LValue) ([]any, error) {
	out := make([]any, len(lvs))
	for i, lv := range lvs {
		v, err := t.Decode(lv)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DecodeKey converts a Lua table key; the session's nil sentinel maps
// back to the host's nil.
func (t *Transcoder) DecodeKey(lv lua.LValue) (any, error) {
	if ud, ok := lv.(*lua.LUserData); ok && ud == t.None {
		return nil, nil
	}
	return t.Decode(lv)
}

// PadResults applies the Lua multiple-assignment rule to a result list:
// truncate past n, pad missing positions with nil.
func PadResults(vals []any, n int) []any {
	out := make([]any, n)
	copy(out, vals)
	return out
}
