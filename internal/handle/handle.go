// Package handle implements the process-global NT-style object table:
// a fixed-capacity array of slots, each tagged with a kind, a native file
// descriptor, an access mask, and an opaque kind-specific pointer.
//
// Grounded on machine_bus.go's SystemBus: a single mutex serializes every
// mutation, while code that already holds a valid handle reads its slot
// without taking the lock, the same split the bus uses between MapIO
// (mutates the table) and Read32/Write32 (walk it without blocking other
// readers of already-published regions).
package handle

import (
	"errors"
	"sync"
)

// Kind identifies what a slot holds.
type Kind int

const (
	Free Kind = iota
	File
	Console
	Mutex
	Event
	Thread
	RegistryKey
)

// Reserved console slots stand in for stdin/stdout/stderr and are never
// reused for anything else.
const (
	ConsoleIn  = 0
	ConsoleOut = 1
	ConsoleErr = 2

	firstAllocatable = 3
	capacitySlots    = 4096
)

var kindNames = map[Kind]string{
	Free: "Free", File: "File", Console: "Console", Mutex: "Mutex",
	Event: "Event", Thread: "Thread", RegistryKey: "RegistryKey",
}

// String renders a Kind for diagnostic and debugger output.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Access is a bit set of {read, write, other}.
type Access uint32

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessOther
)

// Handle is the opaque machine-word value returned to callers. It encodes
// the slot index (1-based so the zero value is never a valid handle) —
// representation is otherwise unconstrained by spec.md §3, which only
// requires it be non-zero, comparable, and storable in a machine word.
type Handle uint64

// Invalid is never returned by Allocate and never accepted by Reference.
const Invalid Handle = 0

var (
	ErrOutOfHandles = errors.New("handle: out of handles")
	ErrInvalid      = errors.New("handle: invalid handle")
)

// Entry is one slot's contents. Extra is owned by the caller that supplied
// it to Allocate, not by the Table: Close never frees it and never closes
// NativeFD, matching spec.md §4.1's "does not close native_fd... and does
// not free extra".
type Entry struct {
	Kind       Kind
	NativeFD   int
	AccessMask Access
	Extra      any
}

// Table is the process-global handle table. The zero value is not usable;
// construct with New.
type Table struct {
	mu    sync.Mutex
	slots [capacitySlots]Entry
}

// New builds a Table with the three console slots pre-reserved.
func New() *Table {
	t := &Table{}
	t.slots[ConsoleIn] = Entry{Kind: Console, NativeFD: 0, AccessMask: AccessRead}
	t.slots[ConsoleOut] = Entry{Kind: Console, NativeFD: 1, AccessMask: AccessWrite}
	t.slots[ConsoleErr] = Entry{Kind: Console, NativeFD: 2, AccessMask: AccessWrite}
	return t
}

// Allocate installs a new entry in the first free slot at or after index 3
// and returns its handle. Mutex-protected, as spec.md §4.1 requires.
func (t *Table) Allocate(kind Kind, nativeFD int, access Access, extra any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := firstAllocatable; i < capacitySlots; i++ {
		if t.slots[i].Kind == Free {
			t.slots[i] = Entry{Kind: kind, NativeFD: nativeFD, AccessMask: access, Extra: extra}
			return Handle(i + 1), nil
		}
	}
	return Invalid, ErrOutOfHandles
}

// Reference decodes h to its slot and returns a copy of the entry. No lock
// is taken: once allocated, a slot's Kind is stable until Close, so a
// concurrent Allocate of a different slot cannot race with this read.
func (t *Table) Reference(h Handle) (Entry, error) {
	idx := int(h) - 1
	if idx < 0 || idx >= capacitySlots {
		return Entry{}, ErrInvalid
	}
	e := t.slots[idx]
	if e.Kind == Free {
		return Entry{}, ErrInvalid
	}
	return e, nil
}

// Mutate applies fn to the slot's entry under the table mutex — used by
// callers (events, mutexes, find-enumeration) that need to update Extra or
// AccessMask in place rather than replace the whole entry via Close+Allocate.
func (t *Table) Mutate(h Handle, fn func(e *Entry)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := int(h) - 1
	if idx < 0 || idx >= capacitySlots || t.slots[idx].Kind == Free {
		return ErrInvalid
	}
	fn(&t.slots[idx])
	return nil
}

// ForEach calls fn once per currently-allocated slot, in ascending handle
// order, for the debugger's handle-table dump (spec.md §6's --monitor).
func (t *Table) ForEach(fn func(h Handle, e Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.slots {
		if e.Kind != Free {
			fn(Handle(i+1), e)
		}
	}
}

// Close frees the slot. It never closes NativeFD and never releases Extra;
// the caller that created the entry owns both and must release them first
// if needed. Closing one of the three reserved console slots is a no-op
// success, per spec.md §4.1.
func (t *Table) Close(h Handle) error {
	idx := int(h) - 1
	if idx >= ConsoleIn && idx <= ConsoleErr {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= capacitySlots || t.slots[idx].Kind == Free {
		return ErrInvalid
	}
	t.slots[idx] = Entry{}
	return nil
}
