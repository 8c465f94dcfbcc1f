// Package gmem views raw guest-addressable memory (the mapped PE image,
// a VirtualAlloc/HeapAlloc region, a guest-supplied output buffer) as Go
// byte slices and fixed-width values, so the stub tables in internal/win32,
// internal/registry, and internal/gfx can decode and fill in the
// uintptr-sized arguments internal/abi.Handler hands them.
//
// Grounded on internal/pe's unsafeSlice/readUint32 family — lifted out to
// a shared package because the win32, registry, and gfx stub tables all
// need the identical "guest address is really a host pointer into memory
// internal/pe or internal/win32 already mapped" view.
package gmem

import (
	"encoding/binary"
	"unsafe"
)

// Slice views n bytes of host-reachable memory starting at addr as a Go
// byte slice. addr always originates from either a PE-mapped image
// region or a VirtualAlloc/HeapAlloc buffer, both backed by memory the
// host manages outside Go's GC (mmap) or pinned for the process lifetime
// (heap allocations), so aliasing it this way is safe for as long as the
// guest holds the address.
func Slice(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// CString reads a NUL-terminated ANSI string at addr, capped at maxLen
// bytes to bound a runaway scan over an unterminated guest buffer.
func CString(addr uintptr, maxLen int) string {
	if addr == 0 {
		return ""
	}
	s := Slice(addr, maxLen)
	for i, c := range s {
		if c == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

// PutCString writes s plus a trailing NUL into the buf-byte buffer at
// addr, truncating if s doesn't fit. Returns the number of bytes written
// excluding the terminator, matching the GetEnvironmentVariableA/
// GetModuleFileNameA "length written" contract.
func PutCString(addr uintptr, bufLen int, s string) int {
	if addr == 0 || bufLen == 0 {
		return 0
	}
	dst := Slice(addr, bufLen)
	n := len(s)
	if n > bufLen-1 {
		n = bufLen - 1
	}
	copy(dst, s[:n])
	if n < bufLen {
		dst[n] = 0
	}
	return n
}

// Ptr32 reinterprets addr as a *int32, for the Interlocked* family which
// take a real machine pointer rather than an address to decode through
// Slice/U32.
func Ptr32(addr uintptr) *int32 {
	return (*int32)(unsafe.Pointer(addr))
}

func U32(addr uintptr) uint32       { return binary.LittleEndian.Uint32(Slice(addr, 4)) }
func PutU32(addr uintptr, v uint32) { binary.LittleEndian.PutUint32(Slice(addr, 4), v) }
func U64(addr uintptr) uint64       { return binary.LittleEndian.Uint64(Slice(addr, 8)) }
func PutU64(addr uintptr, v uint64) { binary.LittleEndian.PutUint64(Slice(addr, 8), v) }

// Bool reports whether a Windows BOOL-as-uint64 argument is nonzero.
func Bool(v uint64) bool { return v != 0 }

// FromBool encodes a Go bool back as a Windows BOOL.
func FromBool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
