package runtime

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/lua-runtime/engine"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
	"github.com/wippyai/lua-runtime/transcoder"
)

// Options configures a session. The zero value is a usable default:
// best registered engine variant, unlimited memory, no helpers beyond
// the always-present ones, reflective attribute access.
type Options struct {
	// EngineVariant selects an engine family by name; empty picks the
	// registry's best variant.
	EngineVariant string

	// Registry supplies engine builds; nil uses engine.DefaultVariants.
	Registry *engine.VariantRegistry

	// MemoryBudgetBytes caps bridge-side allocation in the Lua heap
	// (0 = unlimited).
	MemoryBudgetBytes int64

	// RegisterEvalHelper installs go.eval, letting Lua code compile and
	// run source text through the session.
	RegisterEvalHelper bool

	// RegisterReflectionHelpers installs go.typename and go.length.
	RegisterReflectionHelpers bool

	// UnpackMultiResults makes Eval, Execute, Function.Call and
	// Coroutine.Resume return the full result slice ([]any) with Lua's
	// truncation/padding rule, instead of the first result only.
	UnpackMultiResults bool

	// AttributeFilter vets attribute access on wrapped host objects.
	// Mutually exclusive with the handler pair below.
	AttributeFilter AttrFilter

	// AttributeGetter and AttributeSetter replace reflective attribute
	// access entirely.
	AttributeGetter AttrGetter
	AttributeSetter AttrSetter

	// OverflowHandler maps integers beyond the exact range of a Lua
	// number to a replacement value. Replaceable later with
	// SetOverflowHandler.
	OverflowHandler transcoder.OverflowFunc
}

// Runtime is one scripting session: one Lua state, one reentrant lock,
// one pair of handle tables, one policy set. Sessions are independent;
// values and proxies never cross between them.
//
// Every exported operation acquires the session lock for its duration,
// so a Runtime is safe for concurrent use - calls from other goroutines
// serialize at operation granularity.
type Runtime struct {
	eng      *engine.Engine
	foreign  *resource.ForeignTable
	hosts    *resource.HostTable
	tc       *transcoder.Transcoder
	policy   attrPolicy
	objectMT *lua.LTable
	none     *lua.LUserData
	wrappers wrapperCache

	// guarded by the session lock
	unpack   bool
	overflow transcoder.OverflowFunc
}

// New opens a session. Malformed option combinations are rejected here,
// never discovered mid-call.
func New(opts *Options) (*Runtime, error) {
	if opts == nil {
		opts = &Options{}
	}
	policy, err := newAttrPolicy(opts.AttributeFilter, opts.AttributeGetter, opts.AttributeSetter)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.Config{
		Variant:      opts.EngineVariant,
		Registry:     opts.Registry,
		MemoryBudget: opts.MemoryBudgetBytes,
	})
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		eng:      eng,
		foreign:  resource.NewForeignTable(),
		hosts:    resource.NewHostTable(),
		policy:   policy,
		unpack:   opts.UnpackMultiResults,
		overflow: opts.OverflowHandler,
	}
	r.none = eng.L.NewUserData()
	r.tc = &transcoder.Transcoder{
		L:           eng.L,
		None:        r.none,
		Meter:       eng.Meter(),
		WrapForeign: r.wrapForeign,
		WrapHost:    r.wrapHost,
		Overflow:    func() transcoder.OverflowFunc { return r.overflow },
	}
	r.installHostMetatable()
	r.installHelpers(opts)

	r.foreign.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		engine.Logger().Debug("foreign handle event",
			zap.String("session", eng.ID()),
			zap.Uint64("handle", uint64(e.Handle)),
			zap.Uint8("type", uint8(e.Type)),
			zap.Int32("strong", e.Strong))
	}))

	engine.Logger().Info("session opened", zap.String("session", eng.ID()))
	return r, nil
}

// ID returns the session identifier.
func (r *Runtime) ID() string { return r.eng.ID() }

func (r *Runtime) enter() { r.eng.Lock().Acquire(true) }

func (r *Runtime) leave() {
	if err := r.eng.Lock().Release(); err != nil {
		engine.Logger().Error("session lock release", zap.Error(err))
	}
}

func (r *Runtime) ensureLive(what string) error {
	if r.eng.Closed() {
		return errors.DeadReference(what, r.eng.ID())
	}
	return nil
}

// wrapForeign builds the host proxy for a Lua value crossing out of the
// engine. Threads decoded here count as started: stock coroutine.status
// reports "suspended" for a never-resumed thread and for one parked at a
// yield alike, so a thread created by Lua code cannot be told apart from
// a mid-life one and its proxy never reports StatusNotStarted.
func (r *Runtime) wrapForeign(lv lua.LValue) (any, error) {
	switch lv.(type) {
	case *lua.LTable:
		o, err := r.newObject(lv, "table")
		if err != nil {
			return nil, err
		}
		return &Table{Object: o}, nil
	case *lua.LFunction:
		o, err := r.newObject(lv, "function")
		if err != nil {
			return nil, err
		}
		return &Function{Object: o}, nil
	case *lua.LState:
		o, err := r.newObject(lv, "thread")
		if err != nil {
			return nil, err
		}
		return &Coroutine{Object: o, started: true}, nil
	}
	return r.newObject(lv, lv.Type().String())
}

// Eval compiles code as an expression ("return <code>"; falling back to
// a plain chunk when that does not parse) and runs it. Extra args are
// visible to the chunk as Lua varargs.
func (r *Runtime) Eval(code string, args ...any) (any, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("eval"); err != nil {
		return nil, err
	}
	fn, err := r.compileExpr(code)
	if err != nil {
		return nil, err
	}
	return r.callDecoded(fn, args)
}

// Execute compiles code as a statement chunk and runs it. Extra args are
// visible as Lua varargs.
func (r *Runtime) Execute(code string, args ...any) (any, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("execute"); err != nil {
		return nil, err
	}
	fn, err := r.eng.CompileString(code, "execute")
	if err != nil {
		return nil, err
	}
	return r.callDecoded(fn, args)
}

// Compile compiles code under the given chunk name without running it.
// A failed compile leaves the session unharmed.
func (r *Runtime) Compile(code, name string) (*Function, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("compile"); err != nil {
		return nil, err
	}
	fn, err := r.eng.CompileString(code, name)
	if err != nil {
		return nil, err
	}
	o, err := r.newObject(fn, "function")
	if err != nil {
		return nil, err
	}
	return &Function{Object: o}, nil
}

func (r *Runtime) compileExpr(code string) (*lua.LFunction, error) {
	fn, err := r.eng.CompileString("return "+code, "eval")
	if err == nil {
		return fn, nil
	}
	return r.eng.CompileString(code, "eval")
}

func (r *Runtime) callDecoded(fn lua.LValue, args []any) (any, error) {
	largs, err := r.tc.EncodeAll(args, transcoder.Reference)
	if err != nil {
		return nil, err
	}
	res, err := r.eng.Call(fn, largs...)
	if err != nil {
		return nil, err
	}
	vals, err := r.tc.DecodeAll(res)
	if err != nil {
		return nil, err
	}
	return r.collect(vals), nil
}

// collect applies the session's result mode. Caller holds the lock.
func (r *Runtime) collect(vals []any) any {
	if r.unpack {
		return vals
	}
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

// Globals returns a proxy for the global table.
func (r *Runtime) Globals() (*Table, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("globals"); err != nil {
		return nil, err
	}
	o, err := r.newObject(r.eng.L.G.Global, "table")
	if err != nil {
		return nil, err
	}
	return &Table{Object: o}, nil
}

// SetGlobal binds a host value to a global name.
func (r *Runtime) SetGlobal(name string, v any) error {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("set global"); err != nil {
		return err
	}
	lv, err := r.tc.Encode(v, transcoder.Reference)
	if err != nil {
		return err
	}
	r.eng.L.SetGlobal(name, lv)
	return nil
}

// GetGlobal reads a global by name.
func (r *Runtime) GetGlobal(name string) (any, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("get global"); err != nil {
		return nil, err
	}
	return r.tc.Decode(r.eng.L.GetGlobal(name))
}

// NewTable creates an empty Lua table and returns its proxy.
func (r *Runtime) NewTable() (*Table, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("new table"); err != nil {
		return nil, err
	}
	o, err := r.newObject(r.eng.L.NewTable(), "table")
	if err != nil {
		return nil, err
	}
	return &Table{Object: o}, nil
}

// TableFrom builds a Lua table from host sources. Map sources contribute
// keyed entries; slice and array sources append to the sequence part;
// Table proxies contribute their entries verbatim. With recursive=true
// nested containers are deep-copied; otherwise they are passed by
// reference.
func (r *Runtime) TableFrom(recursive bool, sources ...any) (*Table, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("table from"); err != nil {
		return nil, err
	}
	mode := transcoder.Reference
	if recursive {
		mode = transcoder.Deep
	}

	tbl := r.eng.L.NewTable()
	seq := 0
	for _, src := range sources {
		if src == nil {
			continue
		}
		if tp, ok := src.(*Table); ok {
			stbl, err := tp.table()
			if err != nil {
				return nil, err
			}
			k := lua.LNil
			for {
				nk, nv := stbl.Next(k)
				if nk == lua.LNil {
					break
				}
				tbl.RawSet(nk, nv)
				k = nk
			}
			continue
		}
		rv := reflect.ValueOf(src)
		switch rv.Kind() {
		case reflect.Map:
			iter := rv.MapRange()
			for iter.Next() {
				lk, err := r.tc.EncodeKey(iter.Key().Interface())
				if err != nil {
					return nil, err
				}
				lv, err := r.tc.Encode(iter.Value().Interface(), mode)
				if err != nil {
					return nil, err
				}
				tbl.RawSet(lk, lv)
			}
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				lv, err := r.tc.Encode(rv.Index(i).Interface(), mode)
				if err != nil {
					return nil, err
				}
				seq++
				tbl.RawSetInt(seq, lv)
			}
		default:
			return nil, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
				GoType(rv.Type().String()).
				Detail("table sources must be maps, sequences or table proxies").Build()
		}
	}

	o, err := r.newObject(tbl, "table")
	if err != nil {
		return nil, err
	}
	return &Table{Object: o}, nil
}

// Require runs the Lua require() for name and returns the loaded module.
func (r *Runtime) Require(name string) (any, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("require"); err != nil {
		return nil, err
	}
	res, err := r.eng.CallGlobal("require", lua.LString(name))
	if err != nil {
		return nil, err
	}
	vals, err := r.tc.DecodeAll(res)
	if err != nil {
		return nil, err
	}
	return r.collect(vals), nil
}

// MemoryUsed returns the bytes currently charged against the budget.
func (r *Runtime) MemoryUsed() int64 { return r.eng.Meter().Used() }

// MaxMemory returns the budget ceiling (0 = unlimited).
func (r *Runtime) MaxMemory() int64 { return r.eng.Meter().Max() }

// SetMaxMemory replaces the budget ceiling. Lowering it below current
// usage does not fail retroactively; it applies to the next allocation.
func (r *Runtime) SetMaxMemory(max int64) { r.eng.Meter().SetMax(max) }

// SetOverflowHandler installs (or, with nil, removes) the integer
// overflow handler. Takes effect on the next marshaling operation.
func (r *Runtime) SetOverflowHandler(h transcoder.OverflowFunc) {
	r.enter()
	defer r.leave()
	r.overflow = h
}

// Close tears the session down: every outstanding proxy handle is
// force-invalidated synchronously, then the Lua state is destroyed.
// Idempotent. Proxy operations after Close report dead-reference errors;
// cached proxy strings stay readable.
func (r *Runtime) Close() error {
	r.enter()
	defer r.leave()
	if r.eng.Closed() {
		return nil
	}
	r.foreign.Close()
	r.hosts.Close()
	r.eng.Close()
	engine.Logger().Info("session closed", zap.String("session", r.eng.ID()))
	return nil
}
