package win32

import "time"

// filetimeEpochOffset100ns is the fixed offset between the Unix epoch
// (1970-01-01) and the Windows FILETIME epoch (1601-01-01), in 100-ns
// ticks, per spec.md §4.3.
const filetimeEpochOffset100ns = 116444736000000000

var processStart = time.Now()

// GetTickCount64 returns milliseconds since an arbitrary origin (process
// start), from a monotonic clock.
func GetTickCount64() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}

// GetTickCount is the 32-bit-truncated counterpart, wrapping every ~49.7
// days exactly as the real API does.
func GetTickCount() uint32 {
	return uint32(GetTickCount64())
}

// QueryPerformanceCounter returns a monotonic counter in nanoseconds.
func QueryPerformanceCounter() int64 {
	return time.Since(processStart).Nanoseconds()
}

// QueryPerformanceFrequency is fixed at 10^9, matching a nanosecond-unit
// counter exactly.
func QueryPerformanceFrequency() int64 {
	return 1_000_000_000
}

// GetSystemTimeAsFileTime converts the wall clock to 100-ns ticks since
// the FILETIME epoch.
func GetSystemTimeAsFileTime() uint64 {
	return uint64(time.Now().UnixNano()/100) + filetimeEpochOffset100ns
}
