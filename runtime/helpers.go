package runtime

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
	"github.com/wippyai/lua-runtime/transcoder"
)

// installHelpers publishes the "go" global: the helper surface Lua code
// uses to talk about host values.
//
//	go.none            the host nil usable as a table key
//	go.iter(o)         iterator over a host map (keys) or sequence (values)
//	go.enumerate(o)    iterator yielding key,value / index,value pairs
//	go.as_function(o)  rewrap o under the call protocol
//	go.as_itemgetter(o)
//	go.as_attrgetter(o)
//	go.eval(code, ...)     when RegisterEvalHelper is set
//	go.typename(v)         when RegisterReflectionHelpers is set
//	go.length(v)           when RegisterReflectionHelpers is set
func (r *Runtime) installHelpers(opts *Options) {
	L := r.eng.L
	g := L.NewTable()
	L.SetField(g, "none", r.none)
	L.SetField(g, "iter", L.NewFunction(r.goIter))
	L.SetField(g, "enumerate", L.NewFunction(r.goEnumerate))
	L.SetField(g, "as_function", L.NewFunction(r.asProtocol(resource.ProtocolCall)))
	L.SetField(g, "as_itemgetter", L.NewFunction(r.asProtocol(resource.ProtocolItem)))
	L.SetField(g, "as_attrgetter", L.NewFunction(r.asProtocol(resource.ProtocolAttr)))
	if opts.RegisterEvalHelper {
		L.SetField(g, "eval", L.NewFunction(r.goEval))
	}
	if opts.RegisterReflectionHelpers {
		L.SetField(g, "typename", L.NewFunction(r.goTypename))
		L.SetField(g, "length", L.NewFunction(r.goLength))
	}
	L.SetGlobal("go", g)
}

func (r *Runtime) asProtocol(p resource.Protocol) lua.LGFunction {
	return func(L *lua.LState) int {
		w := checkWrapper(L, 1)
		lv, err := r.wrapHost(w.value, p)
		if err != nil {
			raise(L, err)
		}
		L.Push(lv)
		return 1
	}
}

func (r *Runtime) goIter(L *lua.LState) int {
	w := checkWrapper(L, 1)
	next, err := r.iterClosure(w.value, false)
	if err != nil {
		raise(L, err)
	}
	L.Push(L.NewFunction(next))
	return 1
}

func (r *Runtime) goEnumerate(L *lua.LState) int {
	w := checkWrapper(L, 1)
	next, err := r.iterClosure(w.value, true)
	if err != nil {
		raise(L, err)
	}
	L.Push(L.NewFunction(next))
	return 1
}

// iterClosure builds a stateful Lua iterator over a host container.
// Maps yield keys (with withIndex, key then value); sequences yield
// values (with withIndex, zero-based index then value).
func (r *Runtime) iterClosure(v any, withIndex bool) (lua.LGFunction, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		i := 0
		return func(L *lua.LState) int {
			for i < len(keys) {
				k := keys[i]
				i++
				got := rv.MapIndex(k)
				if !got.IsValid() {
					continue // deleted while iterating
				}
				lk, err := r.tc.Encode(k.Interface(), transcoder.Reference)
				if err != nil {
					raise(L, err)
				}
				L.Push(lk)
				if !withIndex {
					return 1
				}
				lv, err := r.tc.Encode(got.Interface(), transcoder.Reference)
				if err != nil {
					raise(L, err)
				}
				L.Push(lv)
				return 2
			}
			L.Push(lua.LNil)
			return 1
		}, nil
	case reflect.Slice, reflect.Array:
		i := 0
		return func(L *lua.LState) int {
			if i >= rv.Len() {
				L.Push(lua.LNil)
				return 1
			}
			lv, err := r.tc.Encode(rv.Index(i).Interface(), transcoder.Reference)
			if err != nil {
				raise(L, err)
			}
			if withIndex {
				L.Push(lua.LNumber(i))
				L.Push(lv)
				i++
				return 2
			}
			i++
			L.Push(lv)
			return 1
		}, nil
	}
	return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
		GoType(fmt.Sprintf("%T", v)).
		Detail("host value is not iterable").Build()
}

// goEval compiles and runs source text inside the session. The chunk
// runs on the calling thread, so yields inside evaluated code behave
// like yields at the call site.
func (r *Runtime) goEval(L *lua.LState) int {
	code := L.CheckString(1)
	fn, err := r.compileExpr(code)
	if err != nil {
		raise(L, err)
	}
	nargs := L.GetTop() - 1
	args := make([]lua.LValue, nargs)
	for i := range args {
		args[i] = L.Get(i + 2)
	}
	base := L.GetTop()
	// Unprotected: an error unwinds to the enclosing handler as usual.
	_ = L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet}, args...)
	return L.GetTop() - base
}

func (r *Runtime) goTypename(L *lua.LState) int {
	v := L.Get(1)
	if ud, ok := v.(*lua.LUserData); ok {
		if w, ok := ud.Value.(*hostWrapper); ok {
			L.Push(lua.LString(fmt.Sprintf("%T", w.value)))
			return 1
		}
	}
	L.Push(lua.LString(v.Type().String()))
	return 1
}

func (r *Runtime) goLength(L *lua.LState) int {
	v := L.Get(1)
	switch x := v.(type) {
	case *lua.LUserData:
		if _, ok := x.Value.(*hostWrapper); ok {
			return hostLen(L)
		}
	case *lua.LTable:
		L.Push(lua.LNumber(x.Len()))
		return 1
	case lua.LString:
		L.Push(lua.LNumber(len(x)))
		return 1
	}
	raise(L, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
		LuaType(v.Type().String()).
		Detail("value has no length").Build())
	return 0
}
