package win32

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID recovers the calling goroutine's numeric id by parsing the
// header line of runtime.Stack's output. There is no public Go API for
// this; the pack has no library that offers goroutine-local storage, and
// this parsing trick is the same one the wider Go ecosystem's goid-style
// packages use. It backs the per-thread last-error slot and TLS array
// spec.md requires, standing in for a real Windows thread ID.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
