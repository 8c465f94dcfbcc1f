// Package win32 is the kernel32-equivalent surrogate layer: every function
// a guest PE image's IAT can resolve to, wired through internal/abi's
// Microsoft x64 trampolines. Every exported method here follows the same
// three-step shape spec.md §4.3 describes: validate arguments and set the
// calling thread's last-error on bad input, invoke NT/POSIX/local state,
// translate and store any failure before returning the Windows-prescribed
// sentinel.
//
// Grounded on program_executor.go's mutex-guarded session/status fields
// (the pattern behind ThreadState below) and debug_monitor.go's
// goroutine-per-execution-context shape (the pattern behind CreateThread).
package win32

import (
	"os"
	"sync"
	"time"

	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/nt"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
	"github.com/cau-citcwalker/citcrun/internal/registry"
)

// Standard handle sentinels, matching the fixed DWORD values
// STD_INPUT_HANDLE/STD_OUTPUT_HANDLE/STD_ERROR_HANDLE use on input.
const (
	StdInputHandle  = ^uint32(10) + 1 // (DWORD)-10
	StdOutputHandle = ^uint32(11) + 1 // (DWORD)-11
	StdErrorHandle  = ^uint32(12) + 1 // (DWORD)-12
)

// ModulePseudoBase is the fixed non-null value get_module_handle(NULL)
// returns: the conventional PE32+ default image base, whatever address
// the image was actually mapped at; there is no loaded-module list.
const ModulePseudoBase uint64 = 0x0000000140000000

// ProcessPseudoHandle is the fixed -1 sentinel GetCurrentProcess returns.
const ProcessPseudoHandle = ^uint64(0)

// ThreadState is the per-thread block backing last-error, TLS slots, and
// the create_thread/wait bookkeeping a guest thread handle refers to.
type ThreadState struct {
	mu        sync.Mutex
	lastError uint32
	tls       [TLSSlotCount]uint64

	finished bool
	exitCode uint32
	done     chan struct{}
}

const stillActive = 0x103

// Surrogate is the live state backing one guest process: the handle
// table it shares with internal/nt and internal/registry, the NT file
// layer, the registry, and every thread/event/mutex/TLS bookkeeping
// structure the Win32 surface needs.
type Surrogate struct {
	HT  *handle.Table
	NT  *nt.Layer
	Reg *registry.Registry

	imageBase uintptr
	cmdLine   string
	cmdLineBuf []byte
	startTime time.Time

	mu       sync.Mutex
	threads  map[uint64]*ThreadState // goroutine id -> its ThreadState
	heapPins [][]byte                // HeapAlloc buffers, kept alive forever

	tlsMu   sync.Mutex
	tlsUsed [TLSSlotCount]bool
}

// New builds a Surrogate over a fresh handle table shared by the whole
// process, wiring nt and registry on top of it exactly as spec.md §4.1
// requires (one object space for files, console, events, mutexes,
// threads, and registry keys alike).
func New(cmdLine string, imageBase uintptr) *Surrogate {
	ht := handle.New()
	s := &Surrogate{
		HT:        ht,
		NT:        nt.New(ht),
		Reg:       registry.New(ht),
		imageBase: imageBase,
		cmdLine:   cmdLine,
		startTime: time.Now(),
		threads:   make(map[uint64]*ThreadState),
	}
	s.threadState() // register the main thread under its goroutine id
	return s
}

// threadState returns (creating if necessary) the ThreadState for the
// calling goroutine.
func (s *Surrogate) threadState() *ThreadState {
	id := goroutineID()
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.threads[id]
	if !ok {
		ts = &ThreadState{done: make(chan struct{})}
		s.threads[id] = ts
	}
	return ts
}

// SetLastError stores err on the calling thread.
func (s *Surrogate) SetLastError(err uint32) {
	ts := s.threadState()
	ts.mu.Lock()
	ts.lastError = err
	ts.mu.Unlock()
}

// GetLastError retrieves the calling thread's last stored error.
func (s *Surrogate) GetLastError() uint32 {
	ts := s.threadState()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastError
}

// setStatus stores st translated to Win32 as the calling thread's last
// error and returns whether st was success, the common epilogue every
// Win32 method below ends with.
func (s *Surrogate) setStatus(st ntstatus.Status) bool {
	s.SetLastError(ntstatus.ToWin32(st))
	return st == ntstatus.StatusSuccess
}

// GetCurrentProcessId returns the host PID, which
// is stable for the process lifetime and unique enough for a teaching core.
func (s *Surrogate) GetCurrentProcessId() uint32 {
	return uint32(os.Getpid())
}

// GetCurrentThreadId returns the calling goroutine's id, standing in for
// a Windows thread ID: stable for the life of that goroutine, unique
// across concurrently live ones.
func (s *Surrogate) GetCurrentThreadId() uint32 {
	return uint32(goroutineID())
}

// GetCurrentProcess returns the Windows pseudo-handle -1.
func (s *Surrogate) GetCurrentProcess() uint64 {
	return ProcessPseudoHandle
}

// GetModuleHandle returns ModulePseudoBase for a NULL argument (the only
// case this core supports: other loaded modules are out of scope).
func (s *Surrogate) GetModuleHandle(name string) uint64 {
	if name == "" {
		return ModulePseudoBase
	}
	s.SetLastError(ntstatus.ErrorFileNotFound)
	return 0
}

// GetModuleFileName reads the host's own executable link for a NULL
// module argument, matching get_module_filename(NULL)'s contract.
func (s *Surrogate) GetModuleFileName(moduleBase uint64) (string, bool) {
	if moduleBase != 0 && moduleBase != ModulePseudoBase {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return "", false
	}
	exe, err := os.Executable()
	if err != nil {
		s.SetLastError(ntstatus.ErrorGenFailure)
		return "", false
	}
	return exe, true
}

// GetCommandLine returns the process-global command line string LDR set
// before transferring control to the guest entry point.
func (s *Surrogate) GetCommandLine() string {
	return s.cmdLine
}

// ResolveStdHandle maps the three special sentinels to the reserved HT
// console indices; any other value passes through unchanged.
func ResolveStdHandle(v uint32) handle.Handle {
	switch v {
	case StdInputHandle:
		return handle.ConsoleIn + 1
	case StdOutputHandle:
		return handle.ConsoleOut + 1
	case StdErrorHandle:
		return handle.ConsoleErr + 1
	default:
		return handle.Handle(v)
	}
}
