package resource

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.events = append(o.events, e)
}

func TestForeignTableBasic(t *testing.T) {
	tbl := NewForeignTable()

	h := tbl.Insert(lua.LString("value"))
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	v, ok := tbl.Get(h)
	if !ok || v != lua.LString("value") {
		t.Fatalf("get: %v %v", v, ok)
	}

	if _, ok := tbl.Get(h + 100); ok {
		t.Fatal("get on unknown handle succeeded")
	}
}

func TestForeignTableStrongCount(t *testing.T) {
	tbl := NewForeignTable()
	h := tbl.Insert(lua.LNumber(1))

	if !tbl.Retain(h) {
		t.Fatal("retain failed")
	}
	if removed := tbl.Release(h); removed {
		t.Fatal("slot removed while a reference remains")
	}
	if _, ok := tbl.Get(h); !ok {
		t.Fatal("slot gone before count reached zero")
	}
	if removed := tbl.Release(h); !removed {
		t.Fatal("slot not removed at zero count")
	}
	if _, ok := tbl.Get(h); ok {
		t.Fatal("slot readable after removal")
	}
	if tbl.Len() != 0 {
		t.Fatalf("len = %d", tbl.Len())
	}
}

func TestForeignTableClose(t *testing.T) {
	tbl := NewForeignTable()
	h := tbl.Insert(lua.LNumber(1))

	tbl.Close()

	if !tbl.Closed() {
		t.Fatal("not closed")
	}
	if _, ok := tbl.Get(h); ok {
		t.Fatal("get succeeded after close")
	}
	if got := tbl.Insert(lua.LNumber(2)); got != 0 {
		t.Fatal("insert succeeded after close")
	}
	if tbl.Retain(h) {
		t.Fatal("retain succeeded after close")
	}
	// Release after close must not panic; finalizers depend on it.
	tbl.Release(h)
	tbl.Close() // idempotent
}

func TestForeignTableObserver(t *testing.T) {
	tbl := NewForeignTable()
	obs := &testObserver{}
	tbl.Subscribe(obs)

	h := tbl.Insert(lua.LNumber(1))
	tbl.Retain(h)
	tbl.Release(h)
	tbl.Release(h)

	want := []EventType{EventCreated, EventRetained, EventReleased, EventRemoved}
	if len(obs.events) != len(want) {
		t.Fatalf("got %d events, want %d", len(obs.events), len(want))
	}
	for i, e := range obs.events {
		if e.Type != want[i] {
			t.Fatalf("event %d = %v, want %v", i, e.Type, want[i])
		}
	}
}

func TestHostTable(t *testing.T) {
	tbl := NewHostTable()

	type payload struct{ n int }
	h := tbl.Insert(&payload{n: 7}, ProtocolAttr)
	if h == 0 {
		t.Fatal("expected handle")
	}

	v, p, ok := tbl.Get(h)
	if !ok || p != ProtocolAttr || v.(*payload).n != 7 {
		t.Fatalf("get: %v %v %v", v, p, ok)
	}

	if !tbl.Remove(h) {
		t.Fatal("remove failed")
	}
	if _, _, ok := tbl.Get(h); ok {
		t.Fatal("get after remove")
	}

	tbl.Insert("x", ProtocolItem)
	tbl.Close()
	if tbl.Len() != 0 {
		t.Fatal("entries survive close")
	}
	if tbl.Insert("y", ProtocolCall) != 0 {
		t.Fatal("insert after close")
	}
}

func TestProtocolString(t *testing.T) {
	cases := map[Protocol]string{
		ProtocolAuto: "auto",
		ProtocolCall: "call",
		ProtocolItem: "item",
		ProtocolAttr: "attr",
	}
	for p, want := range cases {
		if p.String() != want {
			t.Fatalf("%d.String() = %q, want %q", p, p.String(), want)
		}
	}
}
