package win32

import (
	"sync"
	"time"

	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// Infinite disables the wait deadline, matching INFINITE.
const Infinite = ^uint32(0)

// Wait return codes.
const (
	WaitObject0 = 0
	WaitTimeout = 0x102
	WaitFailed  = ^uint32(0)
)

// CreateThread spawns a host goroutine that invokes fn(param) under the
// foreign ABI via internal/abi.CallForeign, stores the returned value as
// the thread's exit code, and signals its done channel. The new thread
// gets its own ThreadState, registered under its goroutine id before fn
// runs.
//
// Grounded on debug_monitor.go's goroutine-per-session shape (each
// attached session runs its own read loop in a dedicated goroutine that
// reports back through a shared, mutex-guarded struct) and
// program_executor.go's executeAsync (fire goroutine, record outcome
// under the executor's mutex).
func (s *Surrogate) CreateThread(fn uintptr, param uint64) handle.Handle {
	ts := &ThreadState{done: make(chan struct{})}
	started := make(chan struct{})

	go func() {
		s.mu.Lock()
		s.threads[goroutineID()] = ts
		s.mu.Unlock()
		close(started)

		ret := abi.CallForeign(fn, [abi.MaxArgs]uint64{param, 0, 0, 0})

		ts.mu.Lock()
		ts.finished = true
		ts.exitCode = uint32(ret)
		ts.mu.Unlock()
		close(ts.done)
	}()
	<-started

	h, err := s.HT.Allocate(handle.Thread, -1, handle.AccessRead|handle.AccessWrite, ts)
	if err != nil {
		s.SetLastError(ntstatus.ErrorNotEnoughMemory)
		return handle.Invalid
	}
	return h
}

// ExitThread exits the calling host goroutine's thread, per spec.md's
// contract that the trampoline already saved the exit code on normal
// return; explicit exit_thread calls short-circuit that trampoline path
// by marking the thread state finished directly and parking the
// goroutine forever rather than unwinding Go's call stack (Go gives no
// safe way to terminate only the calling goroutine from within itself
// short of returning all the way out).
func (s *Surrogate) ExitThread(exitCode uint32) {
	ts := s.threadState()
	ts.mu.Lock()
	alreadyFinished := ts.finished
	ts.finished = true
	ts.exitCode = exitCode
	ts.mu.Unlock()
	if !alreadyFinished {
		close(ts.done)
	}
	select {}
}

// GetExitCodeThread returns the stored exit code, or STILL_ACTIVE if the
// thread has not finished.
func (s *Surrogate) GetExitCodeThread(h handle.Handle) (uint32, bool) {
	e, err := s.HT.Reference(h)
	if err != nil || e.Kind != handle.Thread {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return 0, false
	}
	ts := e.Extra.(*ThreadState)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.finished {
		return stillActive, true
	}
	return ts.exitCode, true
}

// eventExtra is the event-specific payload stashed in an event
// handle's Entry.Extra.
type eventExtra struct {
	mu       sync.Mutex
	cond     *sync.Cond
	manual   bool
	signaled bool
}

// CreateEvent allocates a manual- or auto-reset event. name is accepted
// but ignored: named cross-process event lookup is out of scope for this
// core.
func (s *Surrogate) CreateEvent(manualReset, initialState bool, name string) handle.Handle {
	ee := &eventExtra{manual: manualReset, signaled: initialState}
	ee.cond = sync.NewCond(&ee.mu)
	h, err := s.HT.Allocate(handle.Event, -1, handle.AccessRead|handle.AccessWrite, ee)
	if err != nil {
		s.SetLastError(ntstatus.ErrorNotEnoughMemory)
		return handle.Invalid
	}
	return h
}

// SetEvent broadcasts waiters of a manual-reset event, or wakes exactly
// one waiter of an auto-reset event. The auto-reset clear happens inside
// WaitForSingleObject, not here, per spec.md §4.3.
func (s *Surrogate) SetEvent(h handle.Handle) bool {
	ee, ok := s.eventOf(h)
	if !ok {
		return false
	}
	ee.mu.Lock()
	ee.signaled = true
	ee.mu.Unlock()
	if ee.manual {
		ee.cond.Broadcast()
	} else {
		ee.cond.Signal()
	}
	return true
}

// ResetEvent clears the signaled state.
func (s *Surrogate) ResetEvent(h handle.Handle) bool {
	ee, ok := s.eventOf(h)
	if !ok {
		return false
	}
	ee.mu.Lock()
	ee.signaled = false
	ee.mu.Unlock()
	return true
}

func (s *Surrogate) eventOf(h handle.Handle) (*eventExtra, bool) {
	e, err := s.HT.Reference(h)
	if err != nil || e.Kind != handle.Event {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return nil, false
	}
	return e.Extra.(*eventExtra), true
}

// mutexExtra backs a recursive, optionally-initially-owned mutex.
type mutexExtra struct {
	mu      sync.Mutex
	locked  bool
	owner   uint64 // goroutine id of the current holder, valid when locked
	recurse int
}

// CreateMutex allocates a recursive mutex, optionally acquired by the
// creating thread immediately.
func (s *Surrogate) CreateMutex(initialOwner bool, name string) handle.Handle {
	me := &mutexExtra{}
	if initialOwner {
		me.locked = true
		me.owner = goroutineID()
		me.recurse = 1
	}
	h, err := s.HT.Allocate(handle.Mutex, -1, handle.AccessRead|handle.AccessWrite, me)
	if err != nil {
		s.SetLastError(ntstatus.ErrorNotEnoughMemory)
		return handle.Invalid
	}
	return h
}

func (s *Surrogate) mutexOf(h handle.Handle) (*mutexExtra, bool) {
	e, err := s.HT.Reference(h)
	if err != nil || e.Kind != handle.Mutex {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return nil, false
	}
	return e.Extra.(*mutexExtra), true
}

// ReleaseMutex decrements the recursion count, unlocking once it reaches
// zero. Fails if the calling thread is not the current owner.
func (s *Surrogate) ReleaseMutex(h handle.Handle) bool {
	me, ok := s.mutexOf(h)
	if !ok {
		return false
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if !me.locked || me.owner != goroutineID() {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return false
	}
	me.recurse--
	if me.recurse == 0 {
		me.locked = false
	}
	return true
}

// CriticalSection is the guest-visible in-out parameter structure:
// spec.md requires one field hold a pointer to a host recursive mutex.
// The Go side keeps that mutex itself rather than a raw pointer, since
// nothing outside this package ever dereferences it directly.
type CriticalSection struct {
	mu      sync.Mutex
	owner   uint64
	count   int
	entered bool
}

// InitializeCriticalSection allocates the host recursive mutex.
func InitializeCriticalSection() *CriticalSection {
	return &CriticalSection{}
}

// Enter acquires the section recursively: a thread that
// already holds it just increments the recursion count.
func (cs *CriticalSection) Enter() {
	id := goroutineID()
	cs.mu.Lock()
	if cs.entered && cs.owner == id {
		cs.count++
		cs.mu.Unlock()
		return
	}
	cs.mu.Unlock()

	// Spin-wait for the real owner to leave; a teaching core's
	// contention is low enough that a tight poll loop is acceptable.
	for {
		cs.mu.Lock()
		if !cs.entered {
			cs.entered = true
			cs.owner = id
			cs.count = 1
			cs.mu.Unlock()
			return
		}
		cs.mu.Unlock()
		time.Sleep(time.Microsecond * 50)
	}
}

// Leave decrements the recursion count, releasing the
// section once it reaches zero.
func (cs *CriticalSection) Leave() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.count--
	if cs.count == 0 {
		cs.entered = false
	}
}

// DeleteCriticalSection is a no-op: the Go-backed CriticalSection has no
// separate native resource to release once the guest drops its pointer.
func DeleteCriticalSection(cs *CriticalSection) {}

// WaitForSingleObject dispatches on the handle's kind: a thread handle
// blocks until its goroutine finishes; an event handle checks/waits on
// its signaled flag, clearing it first if auto-reset; a mutex handle
// trylocks with polling for a bounded timeout, or blocks for Infinite.
func (s *Surrogate) WaitForSingleObject(h handle.Handle, timeoutMs uint32) uint32 {
	e, err := s.HT.Reference(h)
	if err != nil {
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return WaitFailed
	}

	deadline, hasDeadline := deadlineFor(timeoutMs)

	switch e.Kind {
	case handle.Thread:
		ts := e.Extra.(*ThreadState)
		if !hasDeadline {
			<-ts.done
			return WaitObject0
		}
		select {
		case <-ts.done:
			return WaitObject0
		case <-time.After(time.Until(deadline)):
			return WaitTimeout
		}

	case handle.Event:
		ee := e.Extra.(*eventExtra)
		ee.mu.Lock()
		defer ee.mu.Unlock()
		for !ee.signaled {
			if !hasDeadline {
				ee.cond.Wait()
				continue
			}
			if time.Now().After(deadline) {
				return WaitTimeout
			}
			waitCondWithTimeout(ee.cond, 2*time.Millisecond)
		}
		if !ee.manual {
			ee.signaled = false
		}
		return WaitObject0

	case handle.Mutex:
		me := e.Extra.(*mutexExtra)
		id := goroutineID()
		for {
			me.mu.Lock()
			if !me.locked || me.owner == id {
				me.locked = true
				me.owner = id
				me.recurse++
				me.mu.Unlock()
				return WaitObject0
			}
			me.mu.Unlock()
			if hasDeadline && time.Now().After(deadline) {
				return WaitTimeout
			}
			time.Sleep(time.Millisecond)
		}

	default:
		s.SetLastError(ntstatus.ErrorInvalidHandle)
		return WaitFailed
	}
}

// waitCondWithTimeout works around sync.Cond having no timed wait: it
// releases the lock, sleeps briefly, and reacquires, giving the caller's
// polling loop a chance to re-check its own deadline between iterations.
func waitCondWithTimeout(c *sync.Cond, d time.Duration) {
	c.L.Unlock()
	time.Sleep(d)
	c.L.Lock()
}

func deadlineFor(timeoutMs uint32) (time.Time, bool) {
	if timeoutMs == Infinite {
		return time.Time{}, false
	}
	return time.Now().Add(time.Duration(timeoutMs) * time.Millisecond), true
}

// WaitForMultipleObjects waits on every handle in hs. When all is true,
// every wait must succeed, implemented as a serial chain of single-waits
// each bounded by timeoutMs (a per-call bound rather than a single shared
// deadline across the whole chain — a loose but teaching-adequate
// approximation of Windows's "all signaled within timeout" semantics).
// When all is false, each handle is polled with a zero timeout in
// round-robin until one succeeds or the deadline passes, returning the
// satisfying handle's index.
func (s *Surrogate) WaitForMultipleObjects(hs []handle.Handle, all bool, timeoutMs uint32) uint32 {
	if all {
		for _, h := range hs {
			if s.WaitForSingleObject(h, timeoutMs) != WaitObject0 {
				return WaitTimeout
			}
		}
		return WaitObject0
	}

	deadline, hasDeadline := deadlineFor(timeoutMs)
	for {
		for i, h := range hs {
			if s.WaitForSingleObject(h, 0) == WaitObject0 {
				return WaitObject0 + uint32(i)
			}
		}
		if hasDeadline && time.Now().After(deadline) {
			return WaitTimeout
		}
		time.Sleep(time.Millisecond)
	}
}
