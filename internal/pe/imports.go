package pe

import (
	"strconv"

	"github.com/cau-citcwalker/citcrun/internal/abi"
)

const importDescriptorSize = 20 // OriginalFirstThunk, TimeDateStamp, ForwarderChain, Name, FirstThunk — 4 bytes each

// resolveImports walks the zero-terminated import directory array. Every
// non-zero ILT/IAT entry is resolved against imports and the IAT slot is
// overwritten with the resolved host function's address — or the
// catch-all stub's, when nothing matches. Reads happen directly against
// the mapped image (base+rva), since the relevant bytes are already
// copied in from the file by mapSections/reserveAndMapHeaders.
func resolveImports(data []byte, hdr *Headers, base uintptr, imports *abi.Registry) error {
	if hdr.ImportDir.Size == 0 {
		return nil
	}

	descOff := hdr.ImportDir.VirtualAddress
	for {
		descAddr := base + uintptr(descOff)
		originalFirstThunk := readUint32(descAddr)
		nameRVA := readUint32(descAddr + 12)
		firstThunk := readUint32(descAddr + 16)

		if originalFirstThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			break
		}

		dllName := readCString(base + uintptr(nameRVA))

		thunkRVA := originalFirstThunk
		if thunkRVA == 0 {
			thunkRVA = firstThunk // ILT absent: IAT doubles as both read and patch table
		}

		for i := uint32(0); ; i++ {
			entryAddr := base + uintptr(thunkRVA) + uintptr(i)*8
			entry := readUint64(entryAddr)
			if entry == 0 {
				break
			}

			var resolved abi.Handler
			var funcName string
			if entry&0x8000000000000000 != 0 {
				ordinal := uint16(entry & 0xFFFF)
				funcName = ""
				resolved = catchAllStub(dllName, ordinalName(ordinal))
			} else {
				nameTableRVA := uint32(entry & 0x7FFFFFFF)
				// {hint(2), name(variable, NUL-terminated)}
				funcName = readCString(base + uintptr(nameTableRVA) + 2)
				if h, ok := imports.Resolve(dllName, funcName); ok {
					resolved = h
				} else {
					resolved = catchAllStub(dllName, funcName)
				}
			}

			addr, _ := abi.NewTrampoline(resolved)
			iatAddr := base + uintptr(firstThunk) + uintptr(i)*8
			writeUint64(iatAddr, uint64(addr))
		}

		descOff += importDescriptorSize
	}
	return nil
}

const maxImportNameLen = 512

func readCString(addr uintptr) string {
	s := unsafeSlice(addr, maxImportNameLen)
	for i, c := range s {
		if c == 0 {
			return string(s[:i])
		}
	}
	return string(s)
}

func ordinalName(ordinal uint16) string {
	return "#" + strconv.Itoa(int(ordinal))
}
