package win32

import "sync/atomic"

// InterlockedIncrement/Decrement/Exchange/CompareExchange use the host
// atomic built-ins directly; all four operate on 32-bit signed values,
// matching the Interlocked* family's historical (non-64-bit) signatures.

func InterlockedIncrement(addr *int32) int32 {
	return atomic.AddInt32(addr, 1)
}

func InterlockedDecrement(addr *int32) int32 {
	return atomic.AddInt32(addr, -1)
}

func InterlockedExchange(addr *int32, newVal int32) int32 {
	return atomic.SwapInt32(addr, newVal)
}

func InterlockedCompareExchange(addr *int32, exchange, comparand int32) int32 {
	for {
		old := atomic.LoadInt32(addr)
		if old != comparand {
			return old
		}
		if atomic.CompareAndSwapInt32(addr, comparand, exchange) {
			return old
		}
	}
}
