package errors

import (
	"fmt"
	"strings"
)

// LuaError wraps an error raised by Lua code crossing into the host.
// Value preserves the raised Lua error value losslessly: strings, numbers
// and booleans are converted to their Go equivalents, everything else is
// kept as the live Lua value.
//
// Traceback, when available, is reconstructed most-recent-frame-last,
// which is the reverse of Lua's native traceback order.
type LuaError struct {
	Value     any
	Traceback string
}

func (e *LuaError) Error() string {
	var b strings.Builder
	b.WriteString("[runtime] lua error: ")
	b.WriteString(fmt.Sprintf("%v", e.Value))
	if e.Traceback != "" {
		b.WriteByte('\n')
		b.WriteString(e.Traceback)
	}
	return b.String()
}

// Is matches any other LuaError and the generic runtime Error kind.
func (e *LuaError) Is(target error) bool {
	if _, ok := target.(*LuaError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Phase == PhaseRuntime && t.Kind == KindRuntime
	}
	return false
}

// ReorderTraceback converts a native Lua traceback (most recent frame
// first) into most-recent-frame-last order. The header line is replaced;
// frame lines are kept verbatim, only their order changes.
func ReorderTraceback(native string) string {
	native = strings.TrimSpace(native)
	if native == "" {
		return ""
	}

	lines := strings.Split(native, "\n")
	frames := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "stack traceback") {
			continue
		}
		frames = append(frames, "\t"+trimmed)
	}
	if len(frames) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("lua traceback (most recent call last):")
	for i := len(frames) - 1; i >= 0; i-- {
		b.WriteByte('\n')
		b.WriteString(frames[i])
	}
	return b.String()
}
