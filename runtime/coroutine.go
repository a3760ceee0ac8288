package runtime

import (
	stderrors "errors"
	"iter"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/engine"
	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/transcoder"
)

// Status is the lifecycle state of a bridged coroutine. Dead is terminal.
type Status int

const (
	StatusNotStarted Status = iota
	StatusSuspended
	StatusRunning
	StatusNormal
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusSuspended:
		return "suspended"
	case StatusRunning:
		return "running"
	case StatusNormal:
		return "normal"
	default:
		return "dead"
	}
}

// Coroutine is a proxy for a Lua thread. Termination is tracked as
// explicit state: resuming a dead coroutine reports errors.ErrDone
// without entering the engine, never by catching an unwind.
type Coroutine struct {
	*Object
	started bool
	dead    bool
}

// NewCoroutine creates a coroutine from a Lua function, typically a
// *Function proxy obtained from Eval or Compile.
func (r *Runtime) NewCoroutine(fn any) (*Coroutine, error) {
	r.enter()
	defer r.leave()
	if err := r.ensureLive("new coroutine"); err != nil {
		return nil, err
	}
	lfn, err := r.tc.Encode(fn, transcoder.Reference)
	if err != nil {
		return nil, err
	}
	if _, ok := lfn.(*lua.LFunction); !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotCallable).
			LuaType(lfn.Type().String()).
			Detail("coroutine body must be a lua function").Build()
	}
	res, err := r.eng.CallGlobal("coroutine.create", lfn)
	if err != nil {
		return nil, err
	}
	o, err := r.newObject(res[0], "thread")
	if err != nil {
		return nil, err
	}
	return &Coroutine{Object: o}, nil
}

// Status reports the coroutine's current lifecycle state.
func (c *Coroutine) Status() Status {
	c.rt.enter()
	defer c.rt.leave()
	return c.status()
}

func (c *Coroutine) status() Status {
	if c.dead {
		return StatusDead
	}
	if c.rt.eng.Closed() {
		return StatusDead
	}
	th, err := c.luaValue()
	if err != nil {
		c.dead = true
		return StatusDead
	}
	res, err := c.rt.eng.CallGlobal("coroutine.status", th)
	if err != nil || len(res) == 0 {
		return StatusDead
	}
	switch lua.LVAsString(res[0]) {
	case "suspended":
		if !c.started {
			return StatusNotStarted
		}
		return StatusSuspended
	case "running":
		return StatusRunning
	case "normal":
		return StatusNormal
	}
	c.dead = true
	return StatusDead
}

// Alive reports whether the coroutine can still be resumed.
func (c *Coroutine) Alive() bool {
	c.rt.enter()
	defer c.rt.leave()
	return c.status() != StatusDead
}

// Resume runs the coroutine until its next yield or return. The yielded
// (or final) values follow the session's result mode. Resuming after the
// coroutine finished returns errors.ErrDone; an error raised inside the
// body marks the coroutine dead and propagates - host errors as the
// original Go error object, Lua errors as *errors.LuaError.
func (c *Coroutine) Resume(args ...any) (any, error) {
	c.rt.enter()
	defer c.rt.leave()
	if err := c.rt.ensureLive("coroutine resume"); err != nil {
		return nil, err
	}
	if c.dead {
		return nil, errors.ErrDone
	}
	th, err := c.luaValue()
	if err != nil {
		return nil, err
	}
	largs, err := c.rt.tc.EncodeAll(args, transcoder.Reference)
	if err != nil {
		return nil, err
	}

	c.started = true
	res, err := c.rt.eng.CallGlobal("coroutine.resume", append([]lua.LValue{th}, largs...)...)
	if err != nil {
		c.dead = true
		return nil, err
	}
	if len(res) == 0 || res[0] != lua.LTrue {
		c.dead = true
		var errVal lua.LValue = lua.LNil
		if len(res) > 1 {
			errVal = res[1]
		}
		if orig := engine.HostErrorFrom(errVal); orig != nil {
			return nil, orig
		}
		return nil, &errors.LuaError{Value: engine.Scalar(errVal)}
	}

	c.refreshDead(th)
	vals, err := c.rt.tc.DecodeAll(res[1:])
	if err != nil {
		return nil, err
	}
	return c.rt.collect(vals), nil
}

// Send resumes the coroutine with a single value, which becomes the
// result of the pending yield expression inside the body. Send only
// delivers yielded values: the resume that lets the body finish reports
// errors.ErrDone instead of the final return, and sending into a
// coroutine that already finished is a misuse error, not ErrDone.
func (c *Coroutine) Send(v any) (any, error) {
	c.rt.enter()
	dead := c.dead
	c.rt.leave()
	if dead {
		return nil, errors.Misuse("send into a finished coroutine")
	}
	res, err := c.Resume(v)
	if err != nil {
		return nil, err
	}
	c.rt.enter()
	dead = c.dead
	c.rt.leave()
	if dead {
		return nil, errors.ErrDone
	}
	return res, nil
}

func (c *Coroutine) refreshDead(th lua.LValue) {
	res, err := c.rt.eng.CallGlobal("coroutine.status", th)
	if err == nil && len(res) > 0 && lua.LVAsString(res[0]) == "dead" {
		c.dead = true
	}
}

// Values iterates the coroutine from the host, one resume per step,
// ending cleanly when the coroutine finishes. A non-empty final return
// is yielded as the last item; a bare return just ends the iteration.
// An error stops the iteration after being yielded to the consumer.
func (c *Coroutine) Values() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for {
			v, err := c.Resume()
			if err != nil {
				if stderrors.Is(err, errors.ErrDone) {
					return
				}
				yield(nil, err)
				return
			}
			final := !c.Alive()
			if final && emptyResult(v) {
				return
			}
			if !yield(v, nil) {
				return
			}
			if final {
				return
			}
		}
	}
}

func emptyResult(v any) bool {
	if v == nil {
		return true
	}
	vals, ok := v.([]any)
	return ok && len(vals) == 0
}
