package registry

import (
	"github.com/cau-citcwalker/citcrun/internal/abi"
	"github.com/cau-citcwalker/citcrun/internal/gmem"
	"github.com/cau-citcwalker/citcrun/internal/handle"
	"github.com/cau-citcwalker/citcrun/internal/ntstatus"
)

// Value type constants, matching the real REG_* numeric values: only the
// closed set spec.md §3 names is meaningful to this core.
const (
	TypeNone     = 0
	TypeSZ       = 1
	TypeExpandSZ = 2
	TypeBinary   = 3
	TypeDword    = 4
)

// rootPseudoHandle maps the four HKEY_* sentinel values a guest compares
// handles against literally to this core's internal Hive pseudo-handles.
func rootPseudoHandle(hkey uint64) (handle.Handle, bool) {
	switch uint32(hkey) {
	case 0x80000000: // HKEY_CLASSES_ROOT
		return RootHandle(HKCR), true
	case 0x80000001: // HKEY_CURRENT_USER
		return RootHandle(HKCU), true
	case 0x80000002: // HKEY_LOCAL_MACHINE
		return RootHandle(HKLM), true
	case 0x80000003: // HKEY_USERS
		return RootHandle(HKU), true
	default:
		return 0, false
	}
}

const maxCString = 4096

// regDisposition maps the internal Disposition to the real Win32
// REG_CREATED_NEW_KEY/REG_OPENED_EXISTING_KEY constants RegCreateKeyExA
// reports through lpdwDisposition.
func regDisposition(d Disposition) uint32 {
	if d == DispositionCreatedNewKey {
		return 1
	}
	return 2
}

// StubTable builds the advapi32.dll registry import surface.
func (r *Registry) StubTable() *abi.StubTable {
	t := abi.NewStubTable("ADVAPI32.DLL")

	// RegOpenKeyExA(hKey, lpSubKey, ulOptions, samDesired, phkResult): the
	// real ABI puts phkResult, the output handle slot, in the 5th
	// argument, spilled to the stack behind samDesired in r9.
	t.Add("RegOpenKeyExA", func(a [4]uint64, stack abi.StackArgs) uint64 {
		parent, ok := rootPseudoHandle(a[0])
		if !ok {
			parent = handle.Handle(a[0])
		}
		subpath := gmem.CString(uintptr(a[1]), maxCString)
		h, status := r.OpenKey(parent, subpath)
		if status == ntstatus.StatusSuccess {
			gmem.PutU64(uintptr(stack.Arg(5)), uint64(h))
		}
		return uint64(ntstatus.ToWin32(status))
	})

	// RegCreateKeyExA(hKey, lpSubKey, Reserved, lpClass, dwOptions,
	// samDesired, lpSecurityAttributes, phkResult, lpdwDisposition):
	// phkResult is the 8th argument and lpdwDisposition the 9th, both
	// stack-spilled; a[2] is Reserved (conventionally 0), not an output
	// pointer.
	t.Add("RegCreateKeyExA", func(a [4]uint64, stack abi.StackArgs) uint64 {
		parent, ok := rootPseudoHandle(a[0])
		if !ok {
			parent = handle.Handle(a[0])
		}
		subpath := gmem.CString(uintptr(a[1]), maxCString)
		h, disp, status := r.CreateKey(parent, subpath)
		if status == ntstatus.StatusSuccess {
			gmem.PutU64(uintptr(stack.Arg(8)), uint64(h))
			if d := stack.Arg(9); d != 0 {
				gmem.PutU32(uintptr(d), regDisposition(disp))
			}
		}
		return uint64(ntstatus.ToWin32(status))
	})

	t.Add("RegCloseKey", func(a [4]uint64, _ abi.StackArgs) uint64 {
		return uint64(ntstatus.ToWin32(r.CloseKey(handle.Handle(a[0]))))
	})

	// RegQueryValueExA(hKey, lpValueName, lpReserved, lpType, lpData,
	// lpcbData): lpData is the 5th argument and lpcbData the 6th, both
	// stack-spilled; lpType (a[3]) is the last argument that fits in a
	// register.
	t.Add("RegQueryValueExA", func(a [4]uint64, stack abi.StackArgs) uint64 {
		key := handle.Handle(a[0])
		name := gmem.CString(uintptr(a[1]), maxCString)
		lpData := stack.Arg(5)
		lpcbData := stack.Arg(6)

		var buf []byte
		if lpcbData != 0 {
			size := gmem.U32(uintptr(lpcbData))
			if lpData != 0 && size > 0 {
				buf = gmem.Slice(uintptr(lpData), int(size))
			}
		}
		valType, n, status := r.QueryValue(key, name, buf)
		if uintptr(a[3]) != 0 {
			gmem.PutU32(uintptr(a[3]), valType)
		}
		if lpcbData != 0 {
			gmem.PutU32(uintptr(lpcbData), uint32(n))
		}
		return uint64(ntstatus.ToWin32(status))
	})

	// RegSetValueExA(hKey, lpValueName, Reserved, dwType, lpData, cbData):
	// lpData is the 5th argument and cbData the 6th, both stack-spilled;
	// dwType (a[3]) is a small integer, never a pointer.
	t.Add("RegSetValueExA", func(a [4]uint64, stack abi.StackArgs) uint64 {
		key := handle.Handle(a[0])
		name := gmem.CString(uintptr(a[1]), maxCString)
		valType := uint32(a[3])
		data := gmem.Slice(uintptr(stack.Arg(5)), int(stack.Arg(6)))
		status := r.SetValue(key, name, valType, data)
		return uint64(ntstatus.ToWin32(status))
	})

	t.Add("RegDeleteKeyA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		parent, ok := rootPseudoHandle(a[0])
		if !ok {
			parent = handle.Handle(a[0])
		}
		subpath := gmem.CString(uintptr(a[1]), maxCString)
		return uint64(ntstatus.ToWin32(r.DeleteKey(parent, subpath)))
	})

	t.Add("RegDeleteValueA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		key := handle.Handle(a[0])
		name := gmem.CString(uintptr(a[1]), maxCString)
		return uint64(ntstatus.ToWin32(r.DeleteValue(key, name)))
	})

	t.Add("RegEnumKeyExA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		key := handle.Handle(a[0])
		index := int(uint32(a[1]))
		name, status := r.EnumerateSubkeys(key, index)
		if status == ntstatus.StatusSuccess && uintptr(a[2]) != 0 {
			gmem.PutCString(uintptr(a[2]), 256, name)
		}
		return uint64(ntstatus.ToWin32(status))
	})

	t.Add("RegEnumValueA", func(a [4]uint64, _ abi.StackArgs) uint64 {
		key := handle.Handle(a[0])
		index := int(uint32(a[1]))
		name, status := r.EnumerateValues(key, index)
		if status == ntstatus.StatusSuccess && uintptr(a[2]) != 0 {
			gmem.PutCString(uintptr(a[2]), 256, name)
		}
		return uint64(ntstatus.ToWin32(status))
	})

	return t
}
