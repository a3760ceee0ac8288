package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile  Phase = "compile"  // Lua source compilation
	PhaseEncode   Phase = "encode"   // Go to Lua
	PhaseDecode   Phase = "decode"   // Lua to Go
	PhaseRuntime  Phase = "runtime"  // Lua execution
	PhaseConfig   Phase = "config"   // session construction
	PhaseTeardown Phase = "teardown" // session shutdown
)

// Kind categorizes the error
type Kind string

const (
	KindSyntax        Kind = "syntax"
	KindRuntime       Kind = "runtime"
	KindTypeMismatch  Kind = "type_mismatch"
	KindOverflow      Kind = "overflow"
	KindOutOfMemory   Kind = "out_of_memory"
	KindBadKey        Kind = "bad_key"
	KindDeadReference Kind = "dead_reference"
	KindMisuse        Kind = "misuse"
	KindDenied        Kind = "denied"
	KindAbsent        Kind = "absent"
	KindNotCallable   Kind = "not_callable"
	KindDone          Kind = "done"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	LuaType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.LuaType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.LuaType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", Lua type ")
			b.WriteString(e.LuaType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("Lua type ")
			b.WriteString(e.LuaType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.LuaType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// ErrDone is returned when a finished coroutine is resumed again.
// It is the terminal-state signal, not a failure.
var ErrDone = &Error{Phase: PhaseRuntime, Kind: KindDone, Detail: "coroutine is dead"}

// ErrAttributeAbsent is returned by attribute getters to signal that the
// requested attribute does not exist. It maps to the Lua missing-field idiom
// (the access yields nil) instead of raising.
var ErrAttributeAbsent = &Error{Phase: PhaseRuntime, Kind: KindAbsent, Detail: "attribute absent"}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// LuaType sets the Lua type name
func (b *Builder) LuaType(t string) *Builder {
	b.err.LuaType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Syntax creates a compile failure error. The detail carries the compiler
// message including source location.
func Syntax(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindSyntax,
		Detail: detail,
		Cause:  cause,
	}
}

// TypeMismatch creates a marshaling type error
func TypeMismatch(phase Phase, path []string, goType, luaType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		LuaType: luaType,
	}
}

// NotCallable creates an error for calling a value with no call protocol
func NotCallable(phase Phase, typeName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotCallable,
		Detail: fmt.Sprintf("value of type %s is not callable", typeName),
	}
}

// Overflow creates a numeric overflow error
func Overflow(phase Phase, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// OutOfMemory creates a budget-exceeded error, distinct from generic
// runtime failures.
func OutOfMemory(used, max int64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("memory budget exceeded: %d of %d bytes in use", used, max),
	}
}

// BadKey creates an invalid container key error
func BadKey(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBadKey,
		Path:   path,
		Detail: detail,
	}
}

// DeadReference creates an error for operations on a handle whose owner
// was already collected or torn down.
func DeadReference(what, session string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindDeadReference,
		Detail: fmt.Sprintf("%s refers to session %s which is closed", what, session),
	}
}

// Misuse creates a programmer-error condition. Not recoverable, not retried.
func Misuse(detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindMisuse,
		Detail: detail,
	}
}

// Config creates a construction-time configuration error
func Config(detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindMisuse,
		Detail: detail,
	}
}

// Denied creates an attribute-access denial error
func Denied(name string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindDenied,
		Detail: fmt.Sprintf("access to attribute %q denied", name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
