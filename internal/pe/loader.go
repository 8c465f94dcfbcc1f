package pe

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cau-citcwalker/citcrun/internal/abi"
)

const pageSize = 4096

func pageAlign(n uint32) uint32 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Image is an activated PE image: the mapped memory, its section table,
// and the entry point, ready for Execute.
type Image struct {
	Base      uintptr
	Size      uint32
	EntryRVA  uint32
	Sections  []SectionHeader
}

// catchAllStub is installed in the IAT for every import this core could
// not resolve. Invoking it is the signal that the guest touched an
// unimplemented API; it prints a diagnostic naming the dll!name import
// and exits —
// there is no way to let the guest continue with a missing function
// pointer meaningfully.
func catchAllStub(dll, name string) abi.Handler {
	return func(args [abi.MaxArgs]uint64, _ abi.StackArgs) uint64 {
		fmt.Fprintf(os.Stderr, "citcrun: unresolved import %s!%s — guest attempted to call an unimplemented API\n", dll, name)
		os.Exit(1)
		return 0
	}
}

func rawSyscallMmap(addr, length uintptr, prot, flags int) (uintptr, error) {
	mapped, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length, uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return 0, errno
	}
	return mapped, nil
}

// Load parses, maps, relocates, resolves imports against imports, and
// applies final section protection for data — everything up to but not
// including transferring control to the entry point.
func Load(data []byte, imports *abi.Registry) (*Image, error) {
	hdr, err := ParseHeaders(data)
	if err != nil {
		return nil, err
	}

	base, err := reserveAndMapHeaders(data, hdr)
	if err != nil {
		return nil, err
	}

	if err := mapSections(data, hdr, base); err != nil {
		return nil, err
	}

	if err := applyBaseRelocations(data, hdr, base); err != nil {
		return nil, err
	}

	if err := resolveImports(data, hdr, base, imports); err != nil {
		return nil, err
	}

	if err := finalizeProtection(hdr, base); err != nil {
		return nil, err
	}

	return &Image{Base: base, Size: hdr.SizeOfImage, EntryRVA: hdr.EntryRVA, Sections: hdr.Sections}, nil
}

// reserveAndMapHeaders reserves size_of_image bytes with no protection,
// then overlays a writable-readable mapping covering size_of_headers and
// copies the file's header bytes in, since some RVAs address header data.
func reserveAndMapHeaders(data []byte, hdr *Headers) (uintptr, error) {
	sizeOfImage := pageAlign(hdr.SizeOfImage)
	base, err := rawSyscallMmap(0, uintptr(sizeOfImage), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("pe: reserve image region: %w", err)
	}

	headerSize := uintptr(pageAlign(hdr.SizeOfHeaders))
	if _, err := rawSyscallMmap(base, headerSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED); err != nil {
		return 0, fmt.Errorf("pe: map header region: %w", err)
	}
	n := int(hdr.SizeOfHeaders)
	if n > len(data) {
		n = len(data)
	}
	copyToImage(base, data[:n])
	return base, nil
}

// mapSections overlays each section with non-zero raw size with its own
// writable-readable anonymous mapping and copies its file content in.
// Writable+readable at this stage is required because relocations and
// IAT writes mutate otherwise-read-only sections; final protection is
// applied afterward, once those writes are done.
func mapSections(data []byte, hdr *Headers, base uintptr) error {
	for _, sec := range hdr.Sections {
		if sec.SizeOfRawData == 0 {
			continue
		}
		addr := base + uintptr(pageAlignDown(sec.VirtualAddress))
		size := uintptr(pageAlign(sec.VirtualAddress + sec.VirtualSize - pageAlignDown(sec.VirtualAddress)))
		if size == 0 {
			size = pageSize
		}
		if _, err := rawSyscallMmap(addr, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED); err != nil {
			return fmt.Errorf("pe: map section %s: %w", sec.NameString(), err)
		}

		start := int(sec.PointerToRawData)
		end := start + int(sec.SizeOfRawData)
		if start < 0 || end > len(data) || start > end {
			return fmt.Errorf("pe: section %s raw data out of range", sec.NameString())
		}
		copyToImage(base+uintptr(sec.VirtualAddress), data[start:end])
	}
	return nil
}

func pageAlignDown(n uint32) uint32 {
	return n &^ (pageSize - 1)
}

func copyToImage(addr uintptr, src []byte) {
	dst := unsafeSlice(addr, len(src))
	copy(dst, src)
}

// applyBaseRelocations computes delta = actual_base - preferred_base and
// walks the relocation block list, applying dir64/highlow fixups and
// skipping absolute padding entries and unknown types.
func applyBaseRelocations(data []byte, hdr *Headers, base uintptr) error {
	delta := int64(base) - int64(hdr.ImageBase)
	if delta == 0 {
		return nil
	}
	if hdr.BaseRelocDir.Size == 0 {
		return nil // position-independent image, RIP-relative
	}

	off := hdr.BaseRelocDir.VirtualAddress
	end := off + hdr.BaseRelocDir.Size
	for off < end {
		if uint64(off)+8 > uint64(len(data)) {
			break
		}
		blockRVA := binary.LittleEndian.Uint32(imageBytes(data, hdr, off, 4))
		blockSize := binary.LittleEndian.Uint32(imageBytes(data, hdr, off+4, 4))
		if blockSize < 8 {
			break
		}
		entryCount := (blockSize - 8) / 2
		entriesOff := off + 8
		for i := uint32(0); i < entryCount; i++ {
			entry := binary.LittleEndian.Uint16(imageBytes(data, hdr, entriesOff+i*2, 2))
			typ := entry >> 12
			pageOffset := entry & 0xFFF
			target := base + uintptr(blockRVA) + uintptr(pageOffset)
			switch typ {
			case relocAbsolute:
				// padding, ignore
			case relocDir64:
				cur := readUint64(target)
				writeUint64(target, uint64(int64(cur)+delta))
			case relocHighLow:
				cur := readUint32(target)
				writeUint32(target, uint32(int64(cur)+delta))
			default:
				fmt.Fprintf(os.Stderr, "citcrun: skipping unsupported relocation type %d at rva 0x%x\n", typ, blockRVA+uint32(pageOffset))
			}
		}
		off += blockSize
	}
	return nil
}

// imageBytes reads a slice directly from the source file buffer at the
// file offset corresponding to rva. applyBaseRelocations uses it to walk
// the relocation directory (which always lives inside a mapped,
// already-copied section, so reading from the original file bytes gives
// identical results and avoids needing unsafe reads for the directory
// walk itself); DumpInfo uses it for every RVA it reads.
func imageBytes(data []byte, hdr *Headers, rva uint32, n uint32) []byte {
	for _, sec := range hdr.Sections {
		if rva >= sec.VirtualAddress && rva < sec.VirtualAddress+sec.VirtualSize {
			fileOff := sec.PointerToRawData + (rva - sec.VirtualAddress)
			if uint64(fileOff)+uint64(n) <= uint64(len(data)) {
				return data[fileOff : fileOff+n]
			}
		}
	}
	if uint64(rva)+uint64(n) <= uint64(len(data)) {
		return data[rva : rva+n]
	}
	return make([]byte, n)
}

// finalizeProtection computes protection bits from each section's
// characteristics (defaulting to read-only if none are set) and applies
// them with golang.org/x/sync/errgroup fanning the mprotect calls out
// across sections, propagating the first error encountered.
func finalizeProtection(hdr *Headers, base uintptr) error {
	// The header region stays read-only: guest code may legitimately
	// read RVAs that point into it, but nothing should execute or write
	// there after load.
	headerSize := uintptr(pageAlign(hdr.SizeOfHeaders))
	if err := unix.Mprotect(unsafeSlice(base, int(headerSize)), unix.PROT_READ); err != nil {
		return fmt.Errorf("pe: protect header region: %w", err)
	}

	var g errgroup.Group
	for _, sec := range hdr.Sections {
		sec := sec
		if sec.SizeOfRawData == 0 && sec.VirtualSize == 0 {
			continue
		}
		g.Go(func() error {
			prot := sectionProtection(sec.Characteristics)
			addr := base + uintptr(pageAlignDown(sec.VirtualAddress))
			size := uintptr(pageAlign(sec.VirtualAddress+sec.VirtualSize) - pageAlignDown(sec.VirtualAddress))
			if size == 0 {
				size = pageSize
			}
			if err := unix.Mprotect(unsafeSlice(addr, int(size)), prot); err != nil {
				return fmt.Errorf("pe: protect section %s: %w", sec.NameString(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func sectionProtection(characteristics uint32) int {
	read := characteristics&sectionMemRead != 0
	write := characteristics&sectionMemWrite != 0
	exec := characteristics&sectionMemExecute != 0
	if !read && !write && !exec {
		return unix.PROT_READ
	}
	var prot int
	if read {
		prot |= unix.PROT_READ
	}
	if write {
		prot |= unix.PROT_WRITE
	}
	if exec {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// Execute casts base+entry_rva to a zero-argument foreign-convention
// function pointer and calls it. A normal return is treated as process
// exit with status 0; in practice the guest calls exit_process and this
// never returns.
func (img *Image) Execute() uint64 {
	entry := img.Base + uintptr(img.EntryRVA)
	return abi.CallForeign(entry, [abi.MaxArgs]uint64{0, 0, 0, 0})
}
