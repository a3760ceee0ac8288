package engine

import (
	"bytes"
	"runtime"
	"strconv"
)

// goid returns the current goroutine's id as printed in stack headers.
// There is no supported API for this; the stack header format
// ("goroutine N [status]:") has been stable since Go 1.0 and is what the
// runtime itself prints in panics.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	// "goroutine 123 [running]:"
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
