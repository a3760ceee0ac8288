package runtime

import (
	"fmt"
	goruntime "runtime"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
	"github.com/wippyai/lua-runtime/transcoder"
)

// handleCost approximates the bridge-side footprint of one foreign
// handle slot.
const handleCost = 32

// Object is the base host-side proxy for a value living in the Lua heap.
// It holds one counted reference in the session's foreign table; Release
// (or a finalizer, for leaked proxies) drops it. Every operation that
// re-enters the engine checks session liveness first and reports a
// dead-reference error after teardown.
type Object struct {
	rt       *Runtime
	handle   resource.Handle
	kind     string
	str      string
	released bool
}

func (r *Runtime) newObject(lv lua.LValue, kind string) (*Object, error) {
	if err := r.eng.Meter().Charge(handleCost); err != nil {
		return nil, err
	}
	h := r.foreign.Insert(lv)
	if h == 0 {
		r.eng.Meter().Credit(handleCost)
		return nil, errors.DeadReference("new "+kind+" proxy", r.eng.ID())
	}
	o := &Object{rt: r, handle: h, kind: kind}
	goruntime.SetFinalizer(o, (*Object).finalize)
	return o, nil
}

func (o *Object) finalize() {
	if o.rt.foreign.Release(o.handle) {
		o.rt.eng.Meter().Credit(handleCost)
	}
}

// Release drops the proxy's reference into the Lua heap, letting the
// underlying value become collectible once no other proxy holds it.
// Idempotent; safe after session teardown.
func (o *Object) Release() {
	if o.released {
		return
	}
	o.released = true
	goruntime.SetFinalizer(o, nil)
	if o.rt.foreign.Release(o.handle) {
		o.rt.eng.Meter().Credit(handleCost)
	}
}

// Session returns the owning session.
func (o *Object) Session() *Runtime { return o.rt }

// Kind returns the Lua type name this proxy wraps ("table", "function",
// "thread").
func (o *Object) Kind() string { return o.kind }

// luaValue resolves the handle. Caller holds the session lock.
func (o *Object) luaValue() (lua.LValue, error) {
	if o.released {
		return nil, errors.DeadReference("released lua "+o.kind+" proxy", o.rt.eng.ID())
	}
	lv, ok := o.rt.foreign.Get(o.handle)
	if !ok {
		return nil, errors.DeadReference("lua "+o.kind+" proxy", o.rt.eng.ID())
	}
	return lv, nil
}

// ForeignLuaValue hands the underlying Lua value back to the marshaler,
// so a proxy crossing into its own session round-trips by identity.
// Callers outside the marshaling path must hold the session lock.
func (o *Object) ForeignLuaValue() (lua.LValue, error) {
	return o.luaValue()
}

// String renders a stable description of the proxy. The first successful
// render is cached and survives session teardown; a proxy that was never
// rendered while alive reports itself as released. The cache is read and
// written under the session lock, so concurrent String calls are safe.
func (o *Object) String() string {
	o.rt.enter()
	defer o.rt.leave()
	if o.str != "" {
		return o.str
	}
	lv, err := o.luaValue()
	if err != nil {
		return fmt.Sprintf("lua.%s (released)", o.kind)
	}
	o.str = fmt.Sprintf("lua.%s: %p", o.kind, lv)
	return o.str
}

// Table is a proxy for a Lua table. Get and Set are raw accesses: they
// do not trigger __index/__newindex metamethods on the target table.
type Table struct {
	*Object
}

func (t *Table) table() (*lua.LTable, error) {
	lv, err := t.luaValue()
	if err != nil {
		return nil, err
	}
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			LuaType(lv.Type().String()).Detail("proxy target is not a table").Build()
	}
	return tbl, nil
}

// Get reads the entry under key. A host nil key addresses the session's
// nil sentinel. Absent entries come back as nil.
func (t *Table) Get(key any) (any, error) {
	t.rt.enter()
	defer t.rt.leave()
	tbl, err := t.table()
	if err != nil {
		return nil, err
	}
	lk, err := t.rt.tc.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	return t.rt.tc.Decode(tbl.RawGet(lk))
}

// Set writes the entry under key. A nil value removes the entry.
func (t *Table) Set(key, value any) error {
	t.rt.enter()
	defer t.rt.leave()
	tbl, err := t.table()
	if err != nil {
		return err
	}
	lk, err := t.rt.tc.EncodeKey(key)
	if err != nil {
		return err
	}
	lv, err := t.rt.tc.Encode(value, transcoder.Reference)
	if err != nil {
		return err
	}
	tbl.RawSet(lk, lv)
	return nil
}

// Len returns the sequence length (the Lua # operator, raw).
func (t *Table) Len() (int, error) {
	t.rt.enter()
	defer t.rt.leave()
	tbl, err := t.table()
	if err != nil {
		return 0, err
	}
	return tbl.Len(), nil
}

// Keys returns every key in the table, in Lua iteration order.
func (t *Table) Keys() ([]any, error) {
	var keys []any
	err := t.Each(func(k, _ any) error {
		keys = append(keys, k)
		return nil
	})
	return keys, err
}

// Values returns every value in the table, in Lua iteration order.
func (t *Table) Values() ([]any, error) {
	var vals []any
	err := t.Each(func(_, v any) error {
		vals = append(vals, v)
		return nil
	})
	return vals, err
}

// Items returns the table contents as a host map. Non-scalar keys come
// back as proxies, which are distinct map keys per Lua identity.
func (t *Table) Items() (map[any]any, error) {
	items := make(map[any]any)
	err := t.Each(func(k, v any) error {
		items[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Each walks every entry. Returning an error from fn stops the walk and
// propagates the error.
func (t *Table) Each(fn func(k, v any) error) error {
	t.rt.enter()
	defer t.rt.leave()
	tbl, err := t.table()
	if err != nil {
		return err
	}
	k := lua.LNil
	for {
		nk, nv := tbl.Next(k)
		if nk == lua.LNil {
			return nil
		}
		hk, err := t.rt.tc.DecodeKey(nk)
		if err != nil {
			return err
		}
		hv, err := t.rt.tc.Decode(nv)
		if err != nil {
			return err
		}
		if err := fn(hk, hv); err != nil {
			return err
		}
		k = nk
	}
}

// Function is a proxy for a Lua callable.
type Function struct {
	*Object
}

// Call invokes the function. The return shape follows the session's
// result mode: first result (or nil) by default, the full result slice
// with UnpackMultiResults.
func (f *Function) Call(args ...any) (any, error) {
	results, err := f.CallAll(args...)
	if err != nil {
		return nil, err
	}
	return f.rt.collect(results), nil
}

// CallUnpacked invokes the function and returns exactly n results,
// applying the Lua multiple-assignment rule: results past n are dropped,
// missing positions are nil.
func (f *Function) CallUnpacked(n int, args ...any) ([]any, error) {
	results, err := f.CallAll(args...)
	if err != nil {
		return nil, err
	}
	return transcoder.PadResults(results, n), nil
}

// CallAll invokes the function and returns every result.
func (f *Function) CallAll(args ...any) ([]any, error) {
	f.rt.enter()
	defer f.rt.leave()
	if err := f.rt.ensureLive("function call"); err != nil {
		return nil, err
	}
	lv, err := f.luaValue()
	if err != nil {
		return nil, err
	}
	largs, err := f.rt.tc.EncodeAll(args, transcoder.Reference)
	if err != nil {
		return nil, err
	}
	res, err := f.rt.eng.Call(lv, largs...)
	if err != nil {
		return nil, err
	}
	return f.rt.tc.DecodeAll(res)
}
