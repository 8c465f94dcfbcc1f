package win32

import (
	"sync"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/nt"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// csHandles maps the guest-visible LPCRITICAL_SECTION address (the
// address of the struct the guest itself allocated) to the host
// CriticalSection backing it, so Enter/Leave/Delete can find the same
// recursive mutex across calls without the guest struct needing to be
// anything more than an opaque blob from this core's point of view.
//
// Grounded on debug_monitor.go's address-keyed breakpoint map. Guarded
// by its own mutex: guest threads may initialize sections concurrently.
var csHandles = struct {
	mu sync.Mutex
	m  map[uintptr]*CriticalSection
}{m: make(map[uintptr]*CriticalSection)}

func csRegister(addr uintptr, cs *CriticalSection) {
	csHandles.mu.Lock()
	csHandles.m[addr] = cs
	csHandles.mu.Unlock()
}

func csLookup(addr uintptr) *CriticalSection {
	csHandles.mu.Lock()
	defer csHandles.mu.Unlock()
	return csHandles.m[addr]
}

func csRemove(addr uintptr) {
	csHandles.mu.Lock()
	delete(csHandles.m, addr)
	csHandles.mu.Unlock()
}

const maxCString = 4096

// StubTable builds the kernel32.dll import surface: every exported
// function an amd64 PE32+ guest can resolve against, each wrapped so its
// Microsoft x64 arguments (already collected into a [4]uint64 by
// internal/abi's trampoline dispatcher) are decoded into s's Go API and
// the return value re-encoded as the Windows-prescribed sentinel.
func (s *Surrogate) StubTable() *abi.StubTable {
	t := abi.NewStubTable("KERNEL32.DLL")

	t.Add("GetStdHandle", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(ResolveStdHandle(uint32(a[0])))
	})
	t.Add("CloseHandle", func(a [4]uint64, _ abi.StackArgs) uint64 {
		if err := s.HT.Close(handle.Handle(a[0])); err != nil {
			s.SetLastError(ntstatus.ErrorInvalidHandle)
			return 0
		}
		return 1
	})
	t.Add("GetLastError", func(a [4]uint64, _ abi.StackArgs) uint64 { return uint64(s.GetLastError()) })
	t.Add("SetLastError", func(a [4]uint64, _ abi.StackArgs) uint64 { s.SetLastError(uint32(a[0])); return 0 })

	t.Add("WriteFile", func(a [4]uint64, _ abi.StackArgs) uint64 {
		h := handle.Handle(a[0])
		buf := gmem.Slice(uintptr(a[1]), int(uint32(a[2])))
		n, status := s.NT.Write(h, buf)
		if uintptr(a[3]) != 0 {
			gmem.PutU32(uintptr(a[3]), uint32(n))
		}
		return gmem.FromBool(s.setStatus(status))
	})
	t.Add("ReadFile", func(a [4]uint64, _ abi.StackArgs) uint64 {
		h := handle.Handle(a[0])
		buf := gmem.Slice(uintptr(a[1]), int(uint32(a[2])))
		n, status := s.NT.Read(h, buf)
		if uintptr(a[3]) != 0 {
			gmem.PutU32(uintptr(a[3]), uint32(n))
		}
		return gmem.FromBool(s.setStatus(status))
	})
	// CreateFileA(lpFileName, dwDesiredAccess, dwShareMode,
	// lpSecurityAttributes, dwCreationDisposition, ...): disposition is
	// the 5th argument, stack-spilled; a[3] is lpSecurityAttributes.
	t.Add("CreateFileA", func(a [4]uint64, stack abi.StackArgs) uint64 {
		path := gmem.CString(uintptr(a[0]), maxCString)
		access := decodeAccess(uint32(a[1]))
		disp := decodeDisposition(uint32(stack.Arg(5)))
		h, status := s.NT.CreateFile(nt.TranslatePath(path), access, disp)
		s.setStatus(status)
		if status != ntstatus.StatusSuccess {
			return ^uint64(0) // INVALID_HANDLE_VALUE
		}
		return uint64(h)
	})
	t.Add("DeleteFileA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		path := gmem.CString(uintptr(a[0]), maxCString)
		status := s.NT.DeleteFile(nt.TranslatePath(path))
		return gmem.FromBool(s.setStatus(status))
	})
	t.Add("GetFileSize", func(a [4]uint64, _ abi.StackArgs) uint64 {
		size, status := s.NT.QueryFileSize(handle.Handle(a[0]))
		s.setStatus(status)
		if status != ntstatus.StatusSuccess {
			return ^uint64(0) & 0xFFFFFFFF
		}
		if uintptr(a[1]) != 0 {
			gmem.PutU32(uintptr(a[1]), uint32(size>>32))
		}
		return uint64(uint32(size))
	})
	t.Add("SetFilePointer", func(a [4]uint64, _ abi.StackArgs) uint64 {
		// §9 Open Question: distanceHigh (a[2], an in/out pointer) is
		// never read, so its value is not added into the offset; when
		// non-null it receives the high 32 bits of the new position —
		// matches spec.md's documented partial-usage contract.
		offset := int64(int32(uint32(a[1])))
		whence := decodeWhence(uint32(a[3]))
		pos, status := s.NT.SetFilePosition(handle.Handle(a[0]), offset, whence)
		s.setStatus(status)
		if status != ntstatus.StatusSuccess {
			return ^uint64(0) & 0xFFFFFFFF
		}
		if uintptr(a[2]) != 0 {
			gmem.PutU32(uintptr(a[2]), uint32(pos>>32))
		}
		return uint64(uint32(pos))
	})

	t.Add("VirtualAlloc", func(a [4]uint64, _ abi.StackArgs) uint64 {
		addr, ok := s.VirtualAlloc(uintptr(a[0]), a[1], uint32(a[2]), uint32(a[3]))
		if !ok {
			return 0
		}
		return uint64(addr)
	})
	t.Add("VirtualFree", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return gmem.FromBool(s.VirtualFree(uintptr(a[0]), a[1], uint32(a[2])))
	})
	t.Add("GetProcessHeap", func(a [4]uint64, _ abi.StackArgs) uint64 { return s.GetProcessHeap() })
	t.Add("HeapAlloc", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(s.HeapAlloc(a[0], uint32(a[1])&0x00000008 != 0, a[2]))
	})
	t.Add("HeapFree", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return gmem.FromBool(s.HeapFree(a[0], uintptr(a[2])))
	})

	t.Add("GetEnvironmentVariableA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		name := gmem.CString(uintptr(a[0]), maxCString)
		n, ok := s.GetEnv(name, gmem.Slice(uintptr(a[1]), int(uint32(a[2]))))
		if !ok {
			s.SetLastError(ntstatus.ErrorInvalidParameter)
		}
		return uint64(uint32(n))
	})
	t.Add("SetEnvironmentVariableA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		name := gmem.CString(uintptr(a[0]), maxCString)
		value := gmem.CString(uintptr(a[1]), maxCString)
		return gmem.FromBool(s.SetEnv(name, value))
	})

	t.Add("GetCurrentProcessId", func(a [4]uint64, _ abi.StackArgs) uint64 { return uint64(s.GetCurrentProcessId()) })
	t.Add("GetCurrentThreadId", func(a [4]uint64, _ abi.StackArgs) uint64 { return uint64(s.GetCurrentThreadId()) })
	t.Add("GetCurrentProcess", func(a [4]uint64, _ abi.StackArgs) uint64 { return s.GetCurrentProcess() })
	t.Add("GetModuleHandleA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return s.GetModuleHandle(gmem.CString(uintptr(a[0]), maxCString))
	})
	t.Add("GetModuleFileNameA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		name, ok := s.GetModuleFileName(a[0])
		if !ok {
			return 0
		}
		return uint64(gmem.PutCString(uintptr(a[1]), int(uint32(a[2])), name))
	})
	t.Add("GetCommandLineA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		// Returns a pointer to the process-global command line buffer
		// LDR pinned before transferring control; the address is stable
		// for the process lifetime.
		return uint64(cmdLinePtr(s))
	})
	t.Add("ExitProcess", func(a [4]uint64, _ abi.StackArgs) uint64 {
		exitProcess(int(int32(uint32(a[0]))))
		return 0
	})

	t.Add("CreateThread", func(a [4]uint64, _ abi.StackArgs) uint64 {
		// a[0] lpThreadAttributes, a[1] dwStackSize: both ignored.
		// a[2] lpStartAddress, a[3] lpParameter.
		return uint64(s.CreateThread(uintptr(a[2]), a[3]))
	})
	t.Add("ExitThread", func(a [4]uint64, _ abi.StackArgs) uint64 { s.ExitThread(uint32(a[0])); return 0 })
	t.Add("GetExitCodeThread", func(a [4]uint64, _ abi.StackArgs) uint64 {
		code, ok := s.GetExitCodeThread(handle.Handle(a[0]))
		if ok && uintptr(a[1]) != 0 {
			gmem.PutU32(uintptr(a[1]), code)
		}
		return gmem.FromBool(ok)
	})

	t.Add("CreateEventA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		manual := gmem.Bool(a[1])
		initial := gmem.Bool(a[2])
		name := gmem.CString(uintptr(a[3]), maxCString)
		return uint64(s.CreateEvent(manual, initial, name))
	})
	t.Add("SetEvent", func(a [4]uint64, _ abi.StackArgs) uint64 { return gmem.FromBool(s.SetEvent(handle.Handle(a[0]))) })
	t.Add("ResetEvent", func(a [4]uint64, _ abi.StackArgs) uint64 { return gmem.FromBool(s.ResetEvent(handle.Handle(a[0]))) })
	t.Add("CreateMutexA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		owner := gmem.Bool(a[1])
		name := gmem.CString(uintptr(a[2]), maxCString)
		return uint64(s.CreateMutex(owner, name))
	})
	t.Add("ReleaseMutex", func(a [4]uint64, _ abi.StackArgs) uint64 { return gmem.FromBool(s.ReleaseMutex(handle.Handle(a[0]))) })

	t.Add("InitializeCriticalSection", func(a [4]uint64, _ abi.StackArgs) uint64 {
		csRegister(uintptr(a[0]), InitializeCriticalSection())
		return 0
	})
	t.Add("EnterCriticalSection", func(a [4]uint64, _ abi.StackArgs) uint64 {
		if cs := csLookup(uintptr(a[0])); cs != nil {
			cs.Enter()
		}
		return 0
	})
	t.Add("LeaveCriticalSection", func(a [4]uint64, _ abi.StackArgs) uint64 {
		if cs := csLookup(uintptr(a[0])); cs != nil {
			cs.Leave()
		}
		return 0
	})
	t.Add("DeleteCriticalSection", func(a [4]uint64, _ abi.StackArgs) uint64 {
		csRemove(uintptr(a[0]))
		return 0
	})

	t.Add("WaitForSingleObject", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(s.WaitForSingleObject(handle.Handle(a[0]), uint32(a[1])))
	})
	t.Add("WaitForMultipleObjects", func(a [4]uint64, _ abi.StackArgs) uint64 {
		count := uint32(a[0])
		hs := make([]handle.Handle, count)
		base := uintptr(a[1])
		for i := uint32(0); i < count; i++ {
			hs[i] = handle.Handle(gmem.U64(base + uintptr(i)*8))
		}
		return uint64(s.WaitForMultipleObjects(hs, gmem.Bool(a[2]), uint32(a[3])))
	})

	t.Add("TlsAlloc", func(a [4]uint64, _ abi.StackArgs) uint64 { return uint64(s.TlsAlloc()) })
	t.Add("TlsFree", func(a [4]uint64, _ abi.StackArgs) uint64 { return gmem.FromBool(s.TlsFree(uint32(a[0]))) })
	t.Add("TlsSetValue", func(a [4]uint64, _ abi.StackArgs) uint64 { return gmem.FromBool(s.TlsSetValue(uint32(a[0]), a[1])) })
	t.Add("TlsGetValue", func(a [4]uint64, _ abi.StackArgs) uint64 {
		v, _ := s.TlsGetValue(uint32(a[0]))
		return v
	})

	t.Add("InterlockedIncrement", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(uint32(InterlockedIncrement((*int32)(gmem.Ptr32(uintptr(a[0]))))))
	})
	t.Add("InterlockedDecrement", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(uint32(InterlockedDecrement((*int32)(gmem.Ptr32(uintptr(a[0]))))))
	})
	t.Add("InterlockedExchange", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(uint32(InterlockedExchange((*int32)(gmem.Ptr32(uintptr(a[0]))), int32(uint32(a[1])))))
	})
	t.Add("InterlockedCompareExchange", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(uint32(InterlockedCompareExchange((*int32)(gmem.Ptr32(uintptr(a[0]))), int32(uint32(a[1])), int32(uint32(a[2])))))
	})

	t.Add("GetTickCount", func(a [4]uint64, _ abi.StackArgs) uint64 { return uint64(GetTickCount()) })
	t.Add("GetTickCount64", func(a [4]uint64, _ abi.StackArgs) uint64 { return GetTickCount64() })
	t.Add("QueryPerformanceCounter", func(a [4]uint64, _ abi.StackArgs) uint64 {
		if uintptr(a[0]) != 0 {
			gmem.PutU64(uintptr(a[0]), uint64(QueryPerformanceCounter()))
		}
		return 1
	})
	t.Add("QueryPerformanceFrequency", func(a [4]uint64, _ abi.StackArgs) uint64 {
		if uintptr(a[0]) != 0 {
			gmem.PutU64(uintptr(a[0]), uint64(QueryPerformanceFrequency()))
		}
		return 1
	})
	t.Add("GetSystemTimeAsFileTime", func(a [4]uint64, _ abi.StackArgs) uint64 {
		if uintptr(a[0]) != 0 {
			gmem.PutU64(uintptr(a[0]), GetSystemTimeAsFileTime())
		}
		return 0
	})
	t.Add("Sleep", func(a [4]uint64, _ abi.StackArgs) uint64 { sleepMillis(uint32(a[0])); return 0 })

	t.Add("CreateDirectoryA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return gmem.FromBool(s.CreateDirectory(gmem.CString(uintptr(a[0]), maxCString)))
	})
	t.Add("RemoveDirectoryA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return gmem.FromBool(s.RemoveDirectory(gmem.CString(uintptr(a[0]), maxCString)))
	})
	t.Add("GetTempPathA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(gmem.PutCString(uintptr(a[1]), int(uint32(a[0])), s.GetTempPath()))
	})
	t.Add("GetCurrentDirectoryA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		cwd, ok := s.GetCurrentDirectory()
		if !ok {
			return 0
		}
		return uint64(gmem.PutCString(uintptr(a[1]), int(uint32(a[0])), cwd))
	})
	t.Add("SetCurrentDirectoryA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return gmem.FromBool(s.SetCurrentDirectory(gmem.CString(uintptr(a[0]), maxCString)))
	})
	t.Add("GetFileAttributesA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		attrs, ok := s.GetFileAttributes(gmem.CString(uintptr(a[0]), maxCString))
		if !ok {
			return 0xFFFFFFFF // INVALID_FILE_ATTRIBUTES
		}
		return uint64(attrs)
	})
	t.Add("GetFileType", func(a [4]uint64, _ abi.StackArgs) uint64 { return uint64(s.GetFileType(handle.Handle(a[0]))) })

	t.Add("FindFirstFileA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		h, fd, status := s.FindFirst(gmem.CString(uintptr(a[0]), maxCString))
		if status != ntstatus.StatusSuccess {
			s.setStatus(status)
			return ^uint64(0)
		}
		writeFindData(uintptr(a[1]), fd)
		return uint64(h)
	})
	t.Add("FindNextFileA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		fd, status := s.FindNext(handle.Handle(a[0]))
		if status != ntstatus.StatusSuccess {
			s.setStatus(status)
			return 0
		}
		writeFindData(uintptr(a[1]), fd)
		return 1
	})
	t.Add("FindClose", func(a [4]uint64, _ abi.StackArgs) uint64 { return gmem.FromBool(s.FindClose(handle.Handle(a[0]))) })

	t.Add("GetSystemInfo", func(a [4]uint64, _ abi.StackArgs) uint64 { writeSystemInfo(uintptr(a[0])); return 0 })
	t.Add("GlobalMemoryStatusEx", func(a [4]uint64, _ abi.StackArgs) uint64 { writeMemoryStatusEx(uintptr(a[0])); return 1 })
	t.Add("GetVersionExA", func(a [4]uint64, _ abi.StackArgs) uint64 { writeVersionInfo(uintptr(a[0])); return 1 })
	t.Add("GetComputerNameA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		name := ComputerName()
		if uintptr(a[1]) != 0 {
			gmem.PutU32(uintptr(a[1]), uint32(len(name)))
		}
		gmem.PutCString(uintptr(a[0]), len(name)+1, name)
		return 1
	})

	return t
}

func decodeAccess(generic uint32) nt.Access {
	const genericRead, genericWrite = 0x80000000, 0x40000000
	var a nt.Access
	if generic&genericRead != 0 {
		a |= nt.AccessRead
	}
	if generic&genericWrite != 0 {
		a |= nt.AccessWrite
	}
	return a
}

func decodeDisposition(d uint32) nt.Disposition {
	switch d {
	case 1:
		return nt.CreateNew
	case 2:
		return nt.CreateAlways
	case 3:
		return nt.OpenExisting
	case 4:
		return nt.OpenAlways
	case 5:
		return nt.TruncateExisting
	default:
		return nt.OpenExisting
	}
}

func decodeWhence(w uint32) nt.Whence {
	switch w {
	case 1:
		return nt.WhenceCurrent
	case 2:
		return nt.WhenceEnd
	default:
		return nt.WhenceBegin
	}
}

func writeFindData(addr uintptr, fd FindData) {
	if addr == 0 {
		return
	}
	// WIN32_FIND_DATAA layout this core cares about: dwFileAttributes(4),
	// two FILETIME pairs skipped(ftCreationTime/ftLastAccessTime, 16
	// bytes, left zero), ftLastWriteTime(8, left zero), nFileSizeHigh(4),
	// nFileSizeLow(4), dwReserved0/dwReserved1(8, left zero), then
	// cFileName at offset 44 (MAX_PATH 260 bytes).
	gmem.PutU32(addr, fd.Attributes)
	gmem.PutU32(addr+28, uint32(fd.Size>>32))
	gmem.PutU32(addr+32, uint32(fd.Size))
	gmem.PutCString(addr+44, 260, fd.Name)
}

func writeSystemInfo(addr uintptr) {
	if addr == 0 {
		return
	}
	si := GetSystemInfo()
	gmem.PutU32(addr, uint32(si.ProcessorArchitecture))
	gmem.PutU32(addr+4, si.PageSize)
	gmem.PutU32(addr+28, si.AllocationGranularity)
	gmem.PutU32(addr+32, si.NumberOfProcessors)
}

func writeMemoryStatusEx(addr uintptr) {
	if addr == 0 {
		return
	}
	m := GlobalMemoryStatusEx()
	gmem.PutU32(addr, 64) // dwLength
	gmem.PutU32(addr+4, m.MemoryLoad)
	gmem.PutU64(addr+8, m.TotalPhys)
	gmem.PutU64(addr+16, m.AvailPhys)
}

func writeVersionInfo(addr uintptr) {
	if addr == 0 {
		return
	}
	v := GetVersionEx()
	gmem.PutU32(addr+4, v.MajorVersion)
	gmem.PutU32(addr+8, v.MinorVersion)
	gmem.PutU32(addr+12, v.BuildNumber)
}
