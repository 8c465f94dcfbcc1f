package win32

import (
	"os"
	"time"
	"unsafe"
)

func unsafePtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// cmdLineBuf is the pinned, NUL-terminated byte buffer GetCommandLineA
// hands the guest a stable pointer into. It is built on the first call
// and reused unchanged afterwards, matching spec.md §4.3's "process-global C string
// set by LDR before entry".
func (s *Surrogate) commandLinePtr() uintptr {
	if s.cmdLineBuf == nil {
		buf := make([]byte, len(s.cmdLine)+1)
		copy(buf, s.cmdLine)
		s.cmdLineBuf = buf
	}
	return uintptr(unsafePtr(s.cmdLineBuf))
}

func cmdLinePtr(s *Surrogate) uintptr { return s.commandLinePtr() }

// exitProcess ends the host process with the guest-supplied exit code,
// matching exit_process's Windows contract that it never returns.
func exitProcess(code int) { os.Exit(code) }

// sleepMillis blocks the calling goroutine for ms milliseconds, backing
// the guest's Sleep().
func sleepMillis(ms uint32) { time.Sleep(time.Duration(ms) * time.Millisecond) }
