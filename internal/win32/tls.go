package win32

import "github.com/cau-citcwalker/citcrun/internal/ntstatus"

// TLSSlotCount is the fixed number of thread-local-storage slots a
// process may allocate, per spec.md §4.3.
const TLSSlotCount = 64

const tlsOutOfIndexes = ^uint32(0) // TLS_OUT_OF_INDEXES

// TlsAlloc reserves a host TLS slot index under tlsMu. Set/get below do
// not take tlsMu; they lock only the calling thread's own ThreadState.
func (s *Surrogate) TlsAlloc() uint32 {
	s.tlsMu.Lock()
	defer s.tlsMu.Unlock()
	for i := 0; i < TLSSlotCount; i++ {
		if !s.tlsUsed[i] {
			s.tlsUsed[i] = true
			return uint32(i)
		}
	}
	s.SetLastError(ntstatus.ErrorGenFailure)
	return tlsOutOfIndexes
}

// TlsFree releases a slot index so a later TlsAlloc may reuse it.
func (s *Surrogate) TlsFree(index uint32) bool {
	if index >= TLSSlotCount {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return false
	}
	s.tlsMu.Lock()
	s.tlsUsed[index] = false
	s.tlsMu.Unlock()
	return true
}

// TlsSetValue stores value in the calling thread's slot, holding only that
// thread's ThreadState lock (looking the ThreadState up takes s.mu).
func (s *Surrogate) TlsSetValue(index uint32, value uint64) bool {
	if index >= TLSSlotCount {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return false
	}
	ts := s.threadState()
	ts.mu.Lock()
	ts.tls[index] = value
	ts.mu.Unlock()
	return true
}

// TlsGetValue reads the calling thread's slot.
func (s *Surrogate) TlsGetValue(index uint32) (uint64, bool) {
	if index >= TLSSlotCount {
		s.SetLastError(ntstatus.ErrorInvalidParameter)
		return 0, false
	}
	ts := s.threadState()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.tls[index], true
}
