package pe

import (
	"encoding/binary"
	"unsafe"
)

// unsafeSlice views n bytes of raw, syscall-mmap'd memory starting at
// addr as a Go byte slice. The memory backing it was obtained directly
// via SYS_MMAP, not the Go allocator, so it is never subject to GC
// movement or collection; aliasing it this way is the same technique
// memory-mapped-file libraries use for host-mapped regions.
func unsafeSlice(addr uintptr, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func readUint32(addr uintptr) uint32 {
	return binary.LittleEndian.Uint32(unsafeSlice(addr, 4))
}

func writeUint32(addr uintptr, v uint32) {
	binary.LittleEndian.PutUint32(unsafeSlice(addr, 4), v)
}

func readUint64(addr uintptr) uint64 {
	return binary.LittleEndian.Uint64(unsafeSlice(addr, 8))
}

func writeUint64(addr uintptr, v uint64) {
	binary.LittleEndian.PutUint64(unsafeSlice(addr, 8), v)
}
