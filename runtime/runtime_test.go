package runtime

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/transcoder"
)

func newSession(t *testing.T, opts *Options) *Runtime {
	t.Helper()
	rt, err := New(opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestEvalArithmetic(t *testing.T) {
	rt := newSession(t, nil)
	v, err := rt.Eval("1 + 1")
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(2) {
		t.Fatalf("got %v (%T)", v, v)
	}
}

func TestEvalVarargs(t *testing.T) {
	rt := newSession(t, nil)
	v, err := rt.Eval("select('#', ...)", 10, 20, 30)
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(3) {
		t.Fatalf("got %v", v)
	}
}

func TestExecuteThenEval(t *testing.T) {
	rt := newSession(t, nil)
	if _, err := rt.Execute("answer = 40 + 2"); err != nil {
		t.Fatal(err)
	}
	v, err := rt.Eval("answer")
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(42) {
		t.Fatalf("got %v", v)
	}
}

func TestSyntaxErrorThenRecovery(t *testing.T) {
	rt := newSession(t, nil)
	_, err := rt.Eval("this is not lua ((")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindSyntax}) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	// A failed compile leaves the session usable.
	v, err := rt.Eval("2 * 3")
	if err != nil || v != int64(6) {
		t.Fatalf("session harmed by failed compile: %v %v", v, err)
	}
}

func TestCompileAndCall(t *testing.T) {
	rt := newSession(t, nil)
	fn, err := rt.Compile("local a, b = ... return a + b", "adder")
	if err != nil {
		t.Fatal(err)
	}
	v, err := fn.Call(3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(7) {
		t.Fatalf("got %v", v)
	}
}

func TestLuaErrorStringValue(t *testing.T) {
	rt := newSession(t, nil)
	_, err := rt.Eval("error('boom')")
	var lerr *errors.LuaError
	if !stderrors.As(err, &lerr) {
		t.Fatalf("expected LuaError, got %T: %v", err, err)
	}
	s, ok := lerr.Value.(string)
	if !ok || !strings.Contains(s, "boom") {
		t.Fatalf("error value lost: %v", lerr.Value)
	}
}

func TestHostErrorPassthrough(t *testing.T) {
	rt := newSession(t, nil)
	sentinel := stderrors.New("disk on fire")
	if err := rt.SetGlobal("fail", func() error { return sentinel }); err != nil {
		t.Fatal(err)
	}

	_, err := rt.Eval("fail()")
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("host error rewrapped: %v", err)
	}

	// Even across a Lua catch-and-rethrow the original object survives.
	_, err = rt.Execute("local ok, e = pcall(fail) error(e)")
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("host error lost through pcall rethrow: %v", err)
	}
}

func TestGlobalsProxy(t *testing.T) {
	rt := newSession(t, nil)
	g, err := rt.Globals()
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Set("from_go", "hello"); err != nil {
		t.Fatal(err)
	}
	v, err := rt.Eval("from_go")
	if err != nil || v != "hello" {
		t.Fatalf("global not visible: %v %v", v, err)
	}
}

func TestTableProxyRoundTrip(t *testing.T) {
	rt := newSession(t, nil)
	tbl, err := rt.NewTable()
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set("x", int64(1)); err != nil {
		t.Fatal(err)
	}
	v, err := tbl.Get("x")
	if err != nil || v != int64(1) {
		t.Fatalf("got %v %v", v, err)
	}

	// The host nil is a real key, not an absent marker.
	if err := tbl.Set(nil, "for nil"); err != nil {
		t.Fatal(err)
	}
	v, err = tbl.Get(nil)
	if err != nil || v != "for nil" {
		t.Fatalf("nil key: %v %v", v, err)
	}

	// Removing restores the absent reading.
	if err := tbl.Set(nil, nil); err != nil {
		t.Fatal(err)
	}
	if v, _ := tbl.Get(nil); v != nil {
		t.Fatalf("nil key not removed: %v", v)
	}
}

func TestEvalReturnsTableProxy(t *testing.T) {
	rt := newSession(t, nil)
	v, err := rt.Eval("{10, 20, 30}")
	if err != nil {
		t.Fatal(err)
	}
	tbl, ok := v.(*Table)
	if !ok {
		t.Fatalf("expected table proxy, got %T", v)
	}
	n, err := tbl.Len()
	if err != nil || n != 3 {
		t.Fatalf("len: %v %v", n, err)
	}
	first, err := tbl.Get(int64(1)) // Lua sequences are 1-based
	if err != nil || first != int64(10) {
		t.Fatalf("first: %v %v", first, err)
	}
}

func TestTableEachAndKeys(t *testing.T) {
	rt := newSession(t, nil)
	tbl, err := rt.TableFrom(false, map[string]any{"a": int64(1), "b": int64(2)})
	if err != nil {
		t.Fatal(err)
	}
	items, err := tbl.Items()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items["a"] != int64(1) || items["b"] != int64(2) {
		t.Fatalf("items: %v", items)
	}
	keys, err := tbl.Keys()
	if err != nil || len(keys) != 2 {
		t.Fatalf("keys: %v %v", keys, err)
	}
}

func TestTableFromSequenceSources(t *testing.T) {
	rt := newSession(t, nil)
	tbl, err := rt.TableFrom(false, []any{"x", "y"}, []any{"z"})
	if err != nil {
		t.Fatal(err)
	}
	n, err := tbl.Len()
	if err != nil || n != 3 {
		t.Fatalf("sequences not appended: %v %v", n, err)
	}
	v, _ := tbl.Get(int64(3))
	if v != "z" {
		t.Fatalf("got %v", v)
	}
}

func TestSharedMapReference(t *testing.T) {
	rt := newSession(t, nil)
	m := map[string]any{"x": int64(1)}
	if err := rt.SetGlobal("m", m); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Execute("m.x = 2 m.y = 'new'"); err != nil {
		t.Fatal(err)
	}
	if m["x"] != int64(2) || m["y"] != "new" {
		t.Fatalf("mutation not shared: %v", m)
	}
	// Identity survives the round trip.
	v, err := rt.GetGlobal("m")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := v.(map[string]any); !ok || fmt.Sprintf("%p", got) != fmt.Sprintf("%p", m) {
		t.Fatalf("identity lost: %T", v)
	}
}

func TestDeepCopyIsolated(t *testing.T) {
	rt := newSession(t, nil)
	m := map[string]any{"x": int64(1)}
	tbl, err := rt.TableFrom(true, m)
	if err != nil {
		t.Fatal(err)
	}
	g, err := rt.Globals()
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Set("t", tbl); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Execute("t.x = 99"); err != nil {
		t.Fatal(err)
	}
	if m["x"] != int64(1) {
		t.Fatalf("deep copy leaked mutation: %v", m)
	}
}

func TestRequireStdlibModule(t *testing.T) {
	rt := newSession(t, nil)
	v, err := rt.Require("math")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*Table); !ok {
		t.Fatalf("expected module table, got %T", v)
	}
}

func TestUnpackMultiResults(t *testing.T) {
	rt := newSession(t, &Options{UnpackMultiResults: true})
	v, err := rt.Eval("1, 'two', true")
	if err != nil {
		t.Fatal(err)
	}
	vals, ok := v.([]any)
	if !ok || len(vals) != 3 {
		t.Fatalf("got %v (%T)", v, v)
	}
	if vals[0] != int64(1) || vals[1] != "two" || vals[2] != true {
		t.Fatalf("got %v", vals)
	}
}

func TestFunctionCallUnpacked(t *testing.T) {
	rt := newSession(t, nil)
	fn, err := rt.Compile("return 1, 2", "pair")
	if err != nil {
		t.Fatal(err)
	}

	// The multiple-assignment rule: pad short, truncate long.
	vals, err := fn.CallUnpacked(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || vals[0] != int64(1) || vals[1] != int64(2) || vals[2] != nil {
		t.Fatalf("padded: %v", vals)
	}
	vals, err = fn.CallUnpacked(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0] != int64(1) {
		t.Fatalf("truncated: %v", vals)
	}
}

func TestOverflowHandlerInstalledLater(t *testing.T) {
	rt := newSession(t, nil)
	big := int64(1) << 60

	err := rt.SetGlobal("big", big)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEncode, Kind: errors.KindOverflow}) {
		t.Fatalf("expected overflow without handler, got %v", err)
	}

	rt.SetOverflowHandler(transcoder.ToFloat)
	if err := rt.SetGlobal("big", big); err != nil {
		t.Fatal(err)
	}
	v, err := rt.Eval("big")
	if err != nil || v != float64(big) {
		t.Fatalf("got %v %v", v, err)
	}
}

func TestMemoryBudget(t *testing.T) {
	rt := newSession(t, &Options{MemoryBudgetBytes: 256})
	err := rt.SetGlobal("blob", strings.Repeat("x", 4096))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindOutOfMemory}) {
		t.Fatalf("expected out-of-memory, got %v", err)
	}

	rt.SetMaxMemory(1 << 20)
	if err := rt.SetGlobal("blob", strings.Repeat("x", 4096)); err != nil {
		t.Fatalf("raised budget not honored: %v", err)
	}
	if rt.MemoryUsed() < 4096 {
		t.Fatalf("usage not tracked: %d", rt.MemoryUsed())
	}
	if rt.MaxMemory() != 1<<20 {
		t.Fatalf("ceiling: %d", rt.MaxMemory())
	}
}

func TestCloseInvalidatesProxies(t *testing.T) {
	rt := newSession(t, nil)
	tbl, err := rt.NewTable()
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set("x", int64(1)); err != nil {
		t.Fatal(err)
	}
	cached := tbl.String()

	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close not idempotent: %v", err)
	}

	_, err = tbl.Get("x")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindDeadReference}) {
		t.Fatalf("expected dead reference, got %v", err)
	}
	if tbl.String() != cached {
		t.Fatalf("cached string lost: %q vs %q", tbl.String(), cached)
	}

	_, err = rt.Eval("1")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindDeadReference}) {
		t.Fatalf("eval after close: %v", err)
	}
}

func TestProxyReleaseIdempotent(t *testing.T) {
	rt := newSession(t, nil)
	tbl, err := rt.NewTable()
	if err != nil {
		t.Fatal(err)
	}
	tbl.Release()
	tbl.Release()
	if _, err := tbl.Get("x"); err == nil {
		t.Fatal("released proxy still usable")
	}
}

func TestProxyStringConcurrent(t *testing.T) {
	rt := newSession(t, nil)
	tbl, err := rt.NewTable()
	if err != nil {
		t.Fatal(err)
	}

	got := make([]string, 8)
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = tbl.String()
		}()
	}
	wg.Wait()
	for _, s := range got[1:] {
		if s != got[0] {
			t.Fatalf("concurrent renders diverged: %q vs %q", got[0], s)
		}
	}
}

func TestReentrantHostCallback(t *testing.T) {
	rt := newSession(t, nil)
	// The callback re-enters the session from inside a Lua call; the
	// lock recursion makes this a plain nested call.
	err := rt.SetGlobal("nested", func() (int64, error) {
		v, err := rt.Eval("7")
		if err != nil {
			return 0, err
		}
		return v.(int64), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := rt.Eval("nested() + 1")
	if err != nil || v != int64(8) {
		t.Fatalf("got %v %v", v, err)
	}
}

func TestConcurrentSessionsIsolated(t *testing.T) {
	const sessions = 10
	const goroutines = 10

	var wg sync.WaitGroup
	errc := make(chan error, sessions*goroutines)

	for s := 0; s < sessions; s++ {
		rt := newSession(t, nil)
		if _, err := rt.Execute(
			"function fib(n) if n < 2 then return n end return fib(n-1) + fib(n-2) end",
		); err != nil {
			t.Fatal(err)
		}
		seed := int64(s)
		if err := rt.SetGlobal("seed", seed); err != nil {
			t.Fatal(err)
		}
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(rt *Runtime, seed int64) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					v, err := rt.Eval("fib(10) + seed")
					if err != nil {
						errc <- err
						return
					}
					if v != int64(55)+seed {
						errc <- fmt.Errorf("session leaked state: got %v, want %d", v, 55+seed)
						return
					}
				}
			}(rt, seed)
		}
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		t.Fatal(err)
	}
}

func TestInvalidPolicyCombination(t *testing.T) {
	_, err := New(&Options{
		AttributeFilter: func(any, string, bool) (string, error) { return "", nil },
		AttributeGetter: func(any, string) (any, error) { return nil, nil },
	})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindMisuse}) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestUnknownVariantRejected(t *testing.T) {
	_, err := New(&Options{EngineVariant: "no-such-engine"})
	if err == nil {
		t.Fatal("expected variant lookup failure")
	}
}
