package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(PhaseEncode, KindTypeMismatch).
		Path("user", "age").
		GoType("chan int").
		LuaType("number").
		Detail("cannot convert").
		Build()

	msg := err.Error()
	for _, want := range []string{"[encode]", "type_mismatch", "user.age", "chan int", "number", "cannot convert"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestErrorIs(t *testing.T) {
	err := Overflow(PhaseEncode, int64(1)<<60, "lua number")
	if !stderrors.Is(err, &Error{Phase: PhaseEncode, Kind: KindOverflow}) {
		t.Fatal("expected Is match on phase+kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseDecode, Kind: KindOverflow}) {
		t.Fatal("unexpected Is match across phases")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(PhaseRuntime, KindRuntime, cause, "call failed")
	if !stderrors.Is(err, cause) {
		t.Fatal("expected unwrap to reach cause")
	}
	if !strings.Contains(err.Error(), "root cause") {
		t.Fatalf("cause missing from message: %q", err.Error())
	}
}

func TestLuaErrorPreservesValue(t *testing.T) {
	type payload struct{ Code int }
	err := &LuaError{Value: payload{Code: 7}}
	if got := err.Value.(payload).Code; got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if !stderrors.Is(err, &LuaError{}) {
		t.Fatal("expected LuaError to match LuaError target")
	}
}

func TestReorderTraceback(t *testing.T) {
	native := "stack traceback:\n\tinner.lua:3: in function 'boom'\n\touter.lua:9: in main chunk\n\t[G]: ?"
	got := ReorderTraceback(native)

	if !strings.HasPrefix(got, "lua traceback (most recent call last):") {
		t.Fatalf("unexpected header: %q", got)
	}
	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), got)
	}
	// Frame order must be reversed: outermost first, failure site last.
	if !strings.Contains(lines[1], "[G]: ?") {
		t.Fatalf("expected outermost frame first, got %q", lines[1])
	}
	if !strings.Contains(lines[3], "inner.lua:3") {
		t.Fatalf("expected failure site last, got %q", lines[3])
	}
}

func TestReorderTracebackEmpty(t *testing.T) {
	if got := ReorderTraceback(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := ReorderTraceback("stack traceback:"); got != "" {
		t.Fatalf("expected empty for header-only input, got %q", got)
	}
}
