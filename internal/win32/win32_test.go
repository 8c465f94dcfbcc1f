package win32

import (
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
	"github.com/cau-citcwalker/citcrun/internal/handle"
)

// fakeStack builds a synthetic entry-time stack frame: 8 bytes of return
// address, 32 bytes of shadow space, then args in stack-argument order
// (args[0] is the 5th call argument). Used to drive a StubTable handler
// exactly as commonEntry would, including its stack-spilled arguments.
func fakeStack(args ...uint64) abi.StackArgs {
	buf := make([]byte, 40+8*len(args))
	base := uintptr(unsafe.Pointer(&buf[0]))
	for i, v := range args {
		gmem.PutU64(base+40+uintptr(i)*8, v)
	}
	return abi.StackArgs(base)
}

func TestStandardHandleResolution(t *testing.T) {
	if ResolveStdHandle(StdInputHandle) != handle.ConsoleIn+1 {
		t.Fatal("stdin sentinel did not resolve to console-in slot")
	}
	if ResolveStdHandle(StdOutputHandle) != handle.ConsoleOut+1 {
		t.Fatal("stdout sentinel did not resolve to console-out slot")
	}
	if ResolveStdHandle(StdErrorHandle) != handle.ConsoleErr+1 {
		t.Fatal("stderr sentinel did not resolve to console-err slot")
	}
}

func TestLastErrorIsPerThread(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	s.SetLastError(42)

	done := make(chan uint32)
	go func() {
		// A fresh goroutine should see its own zero-valued last error,
		// not the main goroutine's 42.
		done <- s.GetLastError()
	}()
	if got := <-done; got != 0 {
		t.Fatalf("other goroutine's last error = %d, want 0", got)
	}
	if got := s.GetLastError(); got != 42 {
		t.Fatalf("main goroutine's last error = %d, want 42", got)
	}
}

func TestModuleHandleAndCommandLine(t *testing.T) {
	s := New(`C:\games\demo.exe --fullscreen`, 0x140000000)
	if s.GetModuleHandle("") != ModulePseudoBase {
		t.Fatal("GetModuleHandle(\"\") should return the pseudo base")
	}
	if s.GetCommandLine() != `C:\games\demo.exe --fullscreen` {
		t.Fatalf("GetCommandLine = %q", s.GetCommandLine())
	}
}

func TestVirtualAllocFreeRoundTrip(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	addr, ok := s.VirtualAlloc(0, 8192, MemCommit|MemReserve, PageReadWrite)
	if !ok {
		t.Fatalf("VirtualAlloc failed, last error %d", s.GetLastError())
	}
	if addr == 0 {
		t.Fatal("VirtualAlloc returned nil address")
	}
	if !s.VirtualFree(addr, 0, MemRelease) {
		t.Fatalf("VirtualFree failed, last error %d", s.GetLastError())
	}
}

func TestHeapAllocZeroesMemory(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	addr := s.HeapAlloc(s.GetProcessHeap(), true, 16)
	if addr == 0 {
		t.Fatal("HeapAlloc returned nil")
	}
	for i, b := range gmem.Slice(addr, 16) {
		if b != 0 {
			t.Fatalf("HeapAlloc byte %d = %d, want 0", i, b)
		}
	}
	if !s.HeapFree(s.GetProcessHeap(), addr) {
		t.Fatal("HeapFree reported failure")
	}
}

func TestTlsAllocSetGet(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	idx := s.TlsAlloc()
	if idx == tlsOutOfIndexes {
		t.Fatal("TlsAlloc exhausted immediately")
	}
	if !s.TlsSetValue(idx, 0xdeadbeef) {
		t.Fatal("TlsSetValue failed")
	}
	v, ok := s.TlsGetValue(idx)
	if !ok || v != 0xdeadbeef {
		t.Fatalf("TlsGetValue = %x, %v", v, ok)
	}
	if !s.TlsFree(idx) {
		t.Fatal("TlsFree failed")
	}
}

func TestEventSetWaitReset(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	h := s.CreateEvent(true, false, "")
	if h == handle.Invalid {
		t.Fatal("CreateEvent failed")
	}
	if s.WaitForSingleObject(h, 10) != WaitTimeout {
		t.Fatal("wait on unsignaled event should time out")
	}
	s.SetEvent(h)
	if s.WaitForSingleObject(h, Infinite) != WaitObject0 {
		t.Fatal("wait on signaled manual-reset event should succeed")
	}
	// Manual-reset: still signaled after one waiter observes it.
	if s.WaitForSingleObject(h, Infinite) != WaitObject0 {
		t.Fatal("manual-reset event should stay signaled")
	}
	s.ResetEvent(h)
	if s.WaitForSingleObject(h, 10) != WaitTimeout {
		t.Fatal("event should be unsignaled after ResetEvent")
	}
}

func TestMutexCreateReleaseRecursive(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	h := s.CreateMutex(true, "")
	if h == handle.Invalid {
		t.Fatal("CreateMutex failed")
	}
	// Already owned by this goroutine: re-acquiring must not block.
	if s.WaitForSingleObject(h, Infinite) != WaitObject0 {
		t.Fatal("recursive acquire should succeed immediately")
	}
	if !s.ReleaseMutex(h) {
		t.Fatal("first ReleaseMutex failed")
	}
	if !s.ReleaseMutex(h) {
		t.Fatal("second ReleaseMutex failed")
	}
}

func TestGetExitCodeThreadReportsStoredExitCode(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	// CreateThread needs a real foreign-convention function to call
	// (CallForeign on a zero address would crash), so this test only
	// verifies handle bookkeeping via GetExitCodeThread on a thread state
	// marked finished by hand.
	h, err := s.HT.Allocate(handle.Thread, -1, handle.AccessRead, &ThreadState{
		done:     make(chan struct{}),
		finished: true,
		exitCode: 7,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	code, ok := s.GetExitCodeThread(h)
	if !ok || code != 7 {
		t.Fatalf("GetExitCodeThread = %d, %v", code, ok)
	}
}

// TestCreateFileAStubReadsDispositionFromStack exercises CreateFileA
// through StubTable()'s registered handler with the real Microsoft x64
// register layout: dwCreationDisposition is the 5th argument, spilled
// to the stack behind lpSecurityAttributes in a[3].
func TestCreateFileAStubReadsDispositionFromStack(t *testing.T) {
	s := New("citcrun.exe", 0x140000000)
	h, ok := s.StubTable().Funcs["CreateFileA"]
	if !ok {
		t.Fatal("CreateFileA not registered")
	}

	pathStr := filepath.Join(t.TempDir(), "test.bin")
	path := append([]byte(pathStr), 0)
	const (
		genericWrite         = 0x40000000
		createAlways          = 2
		lpSecurityAttributes = 0 // NULL, lands in a[3]
	)
	args := [4]uint64{
		uint64(uintptr(unsafe.Pointer(&path[0]))),
		genericWrite,
		0,
		lpSecurityAttributes,
	}
	stack := fakeStack(createAlways)

	ret := h(args, stack)
	if ret == ^uint64(0) {
		t.Fatalf("CreateFileA failed, last error %d", s.GetLastError())
	}
	if _, err := s.HT.Reference(handle.Handle(ret)); err != nil {
		t.Fatalf("CreateFileA returned an unusable handle: %v", err)
	}
}

func TestCriticalSectionRecursiveEnterLeave(t *testing.T) {
	cs := InitializeCriticalSection()
	cs.Enter()
	cs.Enter() // recursive: same goroutine, must not deadlock
	cs.Leave()
	cs.Leave()
	DeleteCriticalSection(cs)
}

func TestInterlockedOps(t *testing.T) {
	var v int32 = 10
	if InterlockedIncrement(&v) != 11 {
		t.Fatal("increment")
	}
	if InterlockedDecrement(&v) != 10 {
		t.Fatal("decrement")
	}
	if InterlockedExchange(&v, 99) != 10 {
		t.Fatal("exchange should return prior value")
	}
	if v != 99 {
		t.Fatal("exchange should store new value")
	}
	if InterlockedCompareExchange(&v, 5, 99) != 99 {
		t.Fatal("compare-exchange should return prior value")
	}
	if v != 5 {
		t.Fatal("compare-exchange should have swapped")
	}
}
