package win32

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// VirtualAlloc allocation types. This core collapses MEM_COMMIT and
// MEM_RESERVE to the same mmap call, per spec.md §4.3.
const (
	MemCommit   = 0x1000
	MemReserve  = 0x2000
	MemDecommit = 0x4000
	MemRelease  = 0x8000
)

// Page protection bits, matching the real PAGE_* constants' low byte.
const (
	PageNoAccess         = 0x01
	PageReadOnly         = 0x02
	PageReadWrite        = 0x04
	PageExecute          = 0x10
	PageExecuteRead      = 0x20
	PageExecuteReadWrite = 0x40
)

const pageSize = 4096

func protectToNative(protect uint32) int {
	switch protect {
	case PageNoAccess:
		return unix.PROT_NONE
	case PageReadOnly:
		return unix.PROT_READ
	case PageReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case PageExecute:
		return unix.PROT_EXEC
	case PageExecuteRead:
		return unix.PROT_EXEC | unix.PROT_READ
	case PageExecuteReadWrite:
		return unix.PROT_EXEC | unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_READ | unix.PROT_WRITE
	}
}

// VirtualAlloc maps anonymous memory, fixed at addr when addr is
// non-zero, with page protection derived from protect. allocType is
// accepted but MEM_COMMIT/MEM_RESERVE make no behavioral difference here:
// every mapping is backed by real pages immediately.
func (s *Surrogate) VirtualAlloc(addr uintptr, size uint64, allocType uint32, protect uint32) (uintptr, bool) {
	if size == 0 {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return 0, false
	}
	rounded := (size + pageSize - 1) &^ (pageSize - 1)

	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if addr != 0 {
		flags |= unix.MAP_FIXED
	}
	mapped, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(rounded),
		uintptr(protectToNative(protect)), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		s.SetLastError(ntstatus.ToWin32(ntstatus.FromErrno(errno)))
		return 0, false
	}
	return mapped, true
}

// VirtualFree unmaps the region starting at addr. MEM_RELEASE forces
// size = one page when the caller passes zero, so releasing a larger
// allocation that way unmaps only its first page.
func (s *Surrogate) VirtualFree(addr uintptr, size uint64, freeType uint32) bool {
	if addr == 0 {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return false
	}
	if size == 0 && freeType&MemRelease != 0 {
		size = pageSize
	}
	rounded := (size + pageSize - 1) &^ (pageSize - 1)
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(rounded), 0); errno != 0 {
		s.SetLastError(ntstatus.ToWin32(ntstatus.FromErrno(errno)))
		return false
	}
	return true
}

// HeapHandle is the opaque sentinel GetProcessHeap returns; this core has
// exactly one heap backed by the host allocator.
const HeapHandle uint64 = 0x00000000feedc0de

// GetProcessHeap returns the fixed process heap pseudo-handle.
func (s *Surrogate) GetProcessHeap() uint64 {
	return HeapHandle
}

// HeapAlloc wraps the host allocator. zeroMemory mirrors HEAP_ZERO_MEMORY.
// The returned buffer is pinned in s.heapPins for the life of the
// process: HeapFree below never actually releases it, so nothing may
// reclaim it out from under a guest still holding the raw address.
func (s *Surrogate) HeapAlloc(heap uint64, zeroMemory bool, size uint64) uintptr {
	if size == 0 {
		size = 1
	}
	// Go's make already zeros the buffer, so zeroMemory has no
	// observable effect either way.
	buf := make([]byte, size)
	s.mu.Lock()
	s.heapPins = append(s.heapPins, buf)
	s.mu.Unlock()
	return uintptr(unsafe.Pointer(&buf[0]))
}

// HeapFree is a no-op: a host-GC-backed allocator has no way to honor an
// explicit free for memory a guest might still dangle a stale pointer
// into, so HeapAlloc's buffers are pinned for the process lifetime and
// this call only ever reports success.
func (s *Surrogate) HeapFree(heap uint64, addr uintptr) bool {
	return true
}
