package runtime

import (
	stderrors "errors"
	"fmt"
	"reflect"
	goruntime "runtime"
	"sync"
	"weak"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/engine"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
	"github.com/wippyai/lua-runtime/transcoder"
)

const hostObjectType = "go.object"

// wrapperCost approximates the Lua-heap footprint of one host wrapper.
const wrapperCost = 64

// hostWrapper is the userdata payload for a Go value exposed to Lua. The
// governing protocol is resolved once at wrap time, never re-detected
// per access.
type hostWrapper struct {
	rt       *Runtime
	handle   resource.Handle
	value    any
	protocol resource.Protocol
}

func (w *hostWrapper) HostValue() any { return w.value }

// wrapperCache deduplicates userdata wrappers by host-object identity,
// so repeated traffic over the same object reuses one wrapper (and one
// budget charge) instead of minting a fresh userdata per access. Entries
// hold the userdata weakly; the cache never extends a wrapper's life.
type wrapperCache struct {
	mu      sync.Mutex
	entries map[wrapperKey]wrapperRef
}

// wrapperKey identifies a wrapped host object under one protocol. Only
// kinds with a stable identity are cacheable; funcs are excluded because
// distinct closures can share a code pointer.
type wrapperKey struct {
	typ      reflect.Type
	protocol resource.Protocol
	ptr      uintptr
	len, cap int
}

type wrapperRef struct {
	ud     weak.Pointer[lua.LUserData]
	handle resource.Handle
}

func wrapperKeyFor(v any, p resource.Protocol) (wrapperKey, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return wrapperKey{typ: rv.Type(), protocol: p, ptr: rv.Pointer()}, true
	case reflect.Slice:
		return wrapperKey{typ: rv.Type(), protocol: p, ptr: rv.Pointer(), len: rv.Len(), cap: rv.Cap()}, true
	}
	return wrapperKey{}, false
}

func (c *wrapperCache) get(k wrapperKey) *lua.LUserData {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.entries[k]
	if !ok {
		return nil
	}
	return ref.ud.Value()
}

func (c *wrapperCache) put(k wrapperKey, ud *lua.LUserData, h resource.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[wrapperKey]wrapperRef)
	}
	c.entries[k] = wrapperRef{ud: weak.Make(ud), handle: h}
}

// drop removes the entry for h. A newer wrapper may have replaced the
// slot after the weak pointer went nil; that entry stays.
func (c *wrapperCache) drop(k wrapperKey, h resource.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.entries[k]; ok && ref.handle == h {
		delete(c.entries, k)
	}
}

// wrapHost builds (or reuses) the userdata wrapper for a host value. A
// wrapper is registered in the host table and charged against the budget
// for exactly as long as the Lua side can reach it: a finalizer on the
// userdata returns both once the wrapper is collected.
func (r *Runtime) wrapHost(v any, p resource.Protocol) (lua.LValue, error) {
	if p == resource.ProtocolAuto {
		p = detectProtocol(v)
	}
	key, cacheable := wrapperKeyFor(v, p)
	if cacheable {
		if ud := r.wrappers.get(key); ud != nil {
			return ud, nil
		}
	}
	if err := r.eng.Meter().Charge(wrapperCost); err != nil {
		return nil, err
	}
	h := r.hosts.Insert(v, p)
	ud := r.eng.L.NewUserData()
	ud.Value = &hostWrapper{rt: r, handle: h, value: v, protocol: p}
	r.eng.L.SetMetatable(ud, r.objectMT)
	if cacheable {
		r.wrappers.put(key, ud, h)
	}
	// The finalizer must not capture ud itself, or it never runs.
	goruntime.SetFinalizer(ud, func(*lua.LUserData) {
		r.releaseWrapper(key, cacheable, h)
	})
	return ud, nil
}

// releaseWrapper runs on the finalizer goroutine; the cache, host table
// and meter carry their own locks. After session teardown the host table
// is already drained and Remove reports false, so nothing double-credits.
func (r *Runtime) releaseWrapper(key wrapperKey, cached bool, h resource.Handle) {
	if cached {
		r.wrappers.drop(key, h)
	}
	if r.hosts.Remove(h) {
		r.eng.Meter().Credit(wrapperCost)
	}
}

// detectProtocol picks the protocol a wrapper answers to: funcs call,
// maps and sequences index by item, everything else exposes attributes
// (struct fields and methods).
func detectProtocol(v any) resource.Protocol {
	switch t := reflect.TypeOf(v); t.Kind() {
	case reflect.Func:
		return resource.ProtocolCall
	case reflect.Map, reflect.Slice, reflect.Array:
		return resource.ProtocolItem
	case reflect.Ptr:
		switch t.Elem().Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			return resource.ProtocolItem
		}
	}
	return resource.ProtocolAttr
}

func (r *Runtime) installHostMetatable() {
	L := r.eng.L
	mt := L.NewTypeMetatable(hostObjectType)
	L.SetField(mt, "__call", L.NewFunction(hostCall))
	L.SetField(mt, "__index", L.NewFunction(hostIndex))
	L.SetField(mt, "__newindex", L.NewFunction(hostNewIndex))
	L.SetField(mt, "__tostring", L.NewFunction(hostToString))
	L.SetField(mt, "__len", L.NewFunction(hostLen))
	L.SetField(mt, "__eq", L.NewFunction(hostEq))
	L.SetField(mt, "__metatable", lua.LString(hostObjectType))
	r.objectMT = mt
}

func checkWrapper(L *lua.LState, idx int) *hostWrapper {
	ud := L.CheckUserData(idx)
	w, ok := ud.Value.(*hostWrapper)
	if !ok {
		L.ArgError(idx, "host object expected")
	}
	return w
}

// raise propagates a bridge error into the running Lua thread. Raising
// must use the thread the metamethod runs on, which may be a coroutine
// rather than the session's main state.
func raise(L *lua.LState, err error) {
	engine.RaiseHostError(L, err)
}

func hostCall(L *lua.LState) int {
	w := checkWrapper(L, 1)
	if reflect.TypeOf(w.value).Kind() != reflect.Func {
		raise(L, errors.NotCallable(errors.PhaseRuntime, fmt.Sprintf("%T", w.value)))
	}

	nargs := L.GetTop() - 1
	args := make([]any, nargs)
	for i := 0; i < nargs; i++ {
		v, err := w.rt.tc.Decode(L.Get(i + 2))
		if err != nil {
			raise(L, err)
		}
		args[i] = v
	}

	results, err := callGoFunc(w.value, args)
	if err != nil {
		raise(L, err)
	}
	for _, res := range results {
		lv, err := w.rt.tc.Encode(res, transcoder.Reference)
		if err != nil {
			raise(L, err)
		}
		L.Push(lv)
	}
	return len(results)
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// callGoFunc invokes a host func with decoded Lua arguments. A trailing
// error return follows Go convention: non-nil aborts the call and
// propagates as the original error object.
func callGoFunc(fn any, args []any) ([]any, error) {
	rv := reflect.ValueOf(fn)
	rt := rv.Type()

	fixed := rt.NumIn()
	if rt.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				GoType(rt.String()).
				Detail("call needs at least %d arguments, got %d", fixed, len(args)).Build()
		}
	} else if len(args) != fixed {
		return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			GoType(rt.String()).
			Detail("call needs %d arguments, got %d", fixed, len(args)).Build()
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var want reflect.Type
		if i < fixed {
			want = rt.In(i)
		} else {
			want = rt.In(rt.NumIn() - 1).Elem()
		}
		cv, err := convertToGo(a, want)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
				Cause(err).Detail("argument %d", i+1).Build()
		}
		in[i] = cv
	}

	out := rv.Call(in)
	if n := len(out); n > 0 && rt.Out(n-1) == errType {
		if e, _ := out[n-1].Interface().(error); e != nil {
			return nil, e
		}
		out = out[:n-1]
	}
	results := make([]any, len(out))
	for i, o := range out {
		results[i] = o.Interface()
	}
	return results, nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertToGo coerces a decoded value to the target Go type. Numeric
// widths convert freely; everything else requires assignability, so a
// Lua string never silently becomes an int.
func convertToGo(v any, want reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch want.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			GoType(want.String()).Detail("nil is not a valid %s", want).Build()
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(want) {
		return rv, nil
	}
	wk, vk := want.Kind(), rv.Kind()
	if isNumericKind(wk) && isNumericKind(vk) {
		return rv.Convert(want), nil
	}
	if wk == vk && (wk == reflect.String || wk == reflect.Bool) {
		return rv.Convert(want), nil
	}
	return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		GoType(rv.Type().String()).Detail("cannot convert to %s", want).Build()
}

func hostIndex(L *lua.LState) int {
	w := checkWrapper(L, 1)
	key := L.Get(2)
	switch w.protocol {
	case resource.ProtocolItem:
		return w.itemGet(L, key)
	case resource.ProtocolAttr:
		return w.attrGet(L, key)
	}
	raise(L, errors.New(errors.PhaseRuntime, errors.KindDenied).
		GoType(fmt.Sprintf("%T", w.value)).
		Detail("host object does not support indexing").Build())
	return 0
}

func hostNewIndex(L *lua.LState) int {
	w := checkWrapper(L, 1)
	key := L.Get(2)
	value := L.Get(3)
	switch w.protocol {
	case resource.ProtocolItem:
		w.itemSet(L, key, value)
		return 0
	case resource.ProtocolAttr:
		w.attrSet(L, key, value)
		return 0
	}
	raise(L, errors.New(errors.PhaseRuntime, errors.KindDenied).
		GoType(fmt.Sprintf("%T", w.value)).
		Detail("host object does not support assignment").Build())
	return 0
}

// container returns the indexable value, dereferencing one pointer level.
func (w *hostWrapper) container() reflect.Value {
	rv := reflect.ValueOf(w.value)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem()
	}
	return rv
}

func (w *hostWrapper) itemGet(L *lua.LState, key lua.LValue) int {
	k, err := w.rt.tc.DecodeKey(key)
	if err != nil {
		raise(L, err)
	}
	rv := w.container()
	switch rv.Kind() {
	case reflect.Map:
		kv, err := convertToGo(k, rv.Type().Key())
		if err != nil {
			raise(L, errors.BadKey(errors.PhaseDecode, nil, err.Error()))
		}
		got := rv.MapIndex(kv)
		if !got.IsValid() {
			L.Push(lua.LNil)
			return 1
		}
		w.pushEncoded(L, got.Interface())
		return 1
	case reflect.Slice, reflect.Array:
		i := w.seqIndex(L, k, rv.Len())
		w.pushEncoded(L, rv.Index(i).Interface())
		return 1
	}
	raise(L, errors.New(errors.PhaseRuntime, errors.KindDenied).
		GoType(fmt.Sprintf("%T", w.value)).
		Detail("host object is not item-indexable").Build())
	return 0
}

func (w *hostWrapper) itemSet(L *lua.LState, key, value lua.LValue) {
	k, err := w.rt.tc.DecodeKey(key)
	if err != nil {
		raise(L, err)
	}
	v, err := w.rt.tc.Decode(value)
	if err != nil {
		raise(L, err)
	}
	rv := w.container()
	switch rv.Kind() {
	case reflect.Map:
		kv, err := convertToGo(k, rv.Type().Key())
		if err != nil {
			raise(L, errors.BadKey(errors.PhaseDecode, nil, err.Error()))
		}
		if v == nil {
			rv.SetMapIndex(kv, reflect.Value{})
			return
		}
		vv, err := convertToGo(v, rv.Type().Elem())
		if err != nil {
			raise(L, err)
		}
		rv.SetMapIndex(kv, vv)
		return
	case reflect.Slice:
		i := w.seqIndex(L, k, rv.Len())
		vv, err := convertToGo(v, rv.Type().Elem())
		if err != nil {
			raise(L, err)
		}
		rv.Index(i).Set(vv)
		return
	case reflect.Array:
		if !rv.CanSet() {
			raise(L, errors.Misuse("cannot assign into an array passed by value; pass a pointer"))
		}
		i := w.seqIndex(L, k, rv.Len())
		vv, err := convertToGo(v, rv.Type().Elem())
		if err != nil {
			raise(L, err)
		}
		rv.Index(i).Set(vv)
		return
	}
	raise(L, errors.New(errors.PhaseRuntime, errors.KindDenied).
		GoType(fmt.Sprintf("%T", w.value)).
		Detail("host object is not item-assignable").Build())
}

// seqIndex validates a sequence index. Sequences keep Go semantics:
// zero-based, in range.
func (w *hostWrapper) seqIndex(L *lua.LState, k any, n int) int {
	i, ok := k.(int64)
	if !ok {
		raise(L, errors.BadKey(errors.PhaseDecode, nil,
			fmt.Sprintf("sequence index must be an integer, got %T", k)))
	}
	if i < 0 || i >= int64(n) {
		raise(L, errors.BadKey(errors.PhaseRuntime, nil,
			fmt.Sprintf("index %d out of range [0, %d)", i, n)))
	}
	return int(i)
}

func (w *hostWrapper) pushEncoded(L *lua.LState, v any) {
	lv, err := w.rt.tc.Encode(v, transcoder.Reference)
	if err != nil {
		raise(L, err)
	}
	L.Push(lv)
}

func (w *hostWrapper) attrName(L *lua.LState, key lua.LValue) string {
	s, ok := key.(lua.LString)
	if !ok {
		raise(L, errors.BadKey(errors.PhaseDecode, nil,
			fmt.Sprintf("attribute name must be a string, got %s", key.Type())))
	}
	return string(s)
}

func (w *hostWrapper) attrGet(L *lua.LState, key lua.LValue) int {
	name := w.attrName(L, key)
	p := w.rt.policy

	if p.getter != nil {
		v, err := p.getter(w.value, name)
		if err != nil {
			if stderrors.Is(err, errors.ErrAttributeAbsent) {
				L.Push(lua.LNil)
				return 1
			}
			raise(L, err)
		}
		w.pushEncoded(L, v)
		return 1
	}

	if p.filter != nil {
		renamed, err := p.filter(w.value, name, false)
		if err != nil {
			raise(L, err)
		}
		name = renamed
	}

	v, found, err := reflectAttr(w.value, name)
	if err != nil {
		raise(L, err)
	}
	if !found {
		L.Push(lua.LNil)
		return 1
	}
	w.pushEncoded(L, v)
	return 1
}

func (w *hostWrapper) attrSet(L *lua.LState, key, value lua.LValue) {
	name := w.attrName(L, key)
	v, err := w.rt.tc.Decode(value)
	if err != nil {
		raise(L, err)
	}
	p := w.rt.policy

	if p.setter != nil {
		if err := p.setter(w.value, name, v); err != nil {
			raise(L, err)
		}
		return
	}
	if p.getter != nil {
		// A handler pair without a setter is read-only.
		raise(L, errors.Denied(name))
	}
	if p.filter != nil {
		renamed, err := p.filter(w.value, name, true)
		if err != nil {
			raise(L, err)
		}
		name = renamed
	}
	if err := reflectSetAttr(w.value, name, v); err != nil {
		raise(L, err)
	}
}

// reflectAttr resolves name against obj: exported struct field first,
// then method. Methods bind the receiver, so the result is directly
// callable from Lua. Value receivers only expose their value method set;
// pass a pointer for the full set.
func reflectAttr(obj any, name string) (any, bool, error) {
	rv := reflect.ValueOf(obj)

	elem := rv
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false, errors.Misuse("attribute access on nil pointer")
		}
		elem = rv.Elem()
	}
	if elem.Kind() == reflect.Struct {
		if f, ok := elem.Type().FieldByName(name); ok && f.IsExported() {
			return elem.FieldByIndex(f.Index).Interface(), true, nil
		}
	}
	if m := rv.MethodByName(name); m.IsValid() {
		return m.Interface(), true, nil
	}
	return nil, false, nil
}

func reflectSetAttr(obj any, name string, v any) error {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.Misuse("cannot set attribute %q: need a pointer to a struct, have %T", name, obj)
	}
	elem := rv.Elem()
	f, ok := elem.Type().FieldByName(name)
	if !ok || !f.IsExported() {
		return errors.Denied(name)
	}
	fv, err := convertToGo(v, f.Type)
	if err != nil {
		return err
	}
	elem.FieldByIndex(f.Index).Set(fv)
	return nil
}

func hostToString(L *lua.LState) int {
	w := checkWrapper(L, 1)
	L.Push(lua.LString(fmt.Sprintf("%v", w.value)))
	return 1
}

func hostLen(L *lua.LState) int {
	w := checkWrapper(L, 1)
	rv := w.container()
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		L.Push(lua.LNumber(rv.Len()))
		return 1
	}
	raise(L, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
		GoType(fmt.Sprintf("%T", w.value)).
		Detail("host object has no length").Build())
	return 0
}

func hostEq(L *lua.LState) int {
	a, aok := L.CheckUserData(1).Value.(*hostWrapper)
	b, bok := L.CheckUserData(2).Value.(*hostWrapper)
	if !aok || !bok {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(sameHostValue(a.value, b.value)))
	return 1
}

// sameHostValue compares by identity: reference kinds by pointer,
// comparable values by ==, everything else unequal.
func sameHostValue(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}
	if ra.Type() == rb.Type() && ra.Comparable() {
		return a == b
	}
	return false
}
